package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/hastrology/lottery-service/internal/retry"
	"github.com/hastrology/lottery-service/pkg/logger"
)

// Gateway is the service's boundary to the lottery program: typed reads of
// its accounts and submission of its instructions. Reads never require a
// signer; writes do.
type Gateway struct {
	client  *Client
	program *Program
	deriver *Deriver
	signer  Signer
	log     *logger.Logger

	oracleQueue Address
	roundState  Address
	potVault    Address

	confirmAttempts int
	confirmInterval time.Duration
}

// GatewayConfig holds the gateway's dependencies.
type GatewayConfig struct {
	Client      *Client
	ProgramID   Address
	OracleQueue Address
	Signer      Signer // nil for read-only consumers
	Log         *logger.Logger

	ConfirmAttempts int           // default 30
	ConfirmInterval time.Duration // default 2s
}

// NewGateway derives the program's singleton addresses once and returns a
// ready gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client required")
	}
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("program id required")
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault("chain")
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 30
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = 2 * time.Second
	}

	deriver := NewDeriver(cfg.ProgramID)
	roundState, _, err := deriver.RoundState()
	if err != nil {
		return nil, fmt.Errorf("derive round state: %w", err)
	}
	potVault, _, err := deriver.PotVault()
	if err != nil {
		return nil, fmt.Errorf("derive pot vault: %w", err)
	}

	return &Gateway{
		client:          cfg.Client,
		program:         NewProgram(cfg.ProgramID),
		deriver:         deriver,
		signer:          cfg.Signer,
		log:             cfg.Log,
		oracleQueue:     cfg.OracleQueue,
		roundState:      roundState,
		potVault:        potVault,
		confirmAttempts: cfg.ConfirmAttempts,
		confirmInterval: cfg.ConfirmInterval,
	}, nil
}

// RoundStateAddress returns the derived singleton round state address.
func (g *Gateway) RoundStateAddress() Address { return g.roundState }

// PotVaultAddress returns the derived pot vault address.
func (g *Gateway) PotVaultAddress() Address { return g.potVault }

// TicketAddress derives the ticket address for (round, index).
func (g *Gateway) TicketAddress(roundID, ticketIndex uint64) (Address, error) {
	addr, _, err := g.deriver.Ticket(roundID, ticketIndex)
	return addr, err
}

// EntryReceiptAddress derives the receipt address for a participant/round.
func (g *Gateway) EntryReceiptAddress(participant Address, roundID uint64) (Address, error) {
	addr, _, err := g.deriver.EntryReceipt(participant, roundID)
	return addr, err
}

// FetchRoundState reads and decodes the current round state.
func (g *Gateway) FetchRoundState(ctx context.Context) (RoundState, error) {
	data, err := g.client.GetAccountInfo(ctx, g.roundState)
	if err != nil {
		return RoundState{}, fmt.Errorf("fetch round state: %w", err)
	}
	state, err := DecodeRoundState(data)
	if err != nil {
		return RoundState{}, err
	}
	if state.BoolAnomaly {
		g.log.WithField("round_id", state.RoundID).
			Warn("round state isDrawing byte outside {0,1}; treating as true")
	}
	return state, nil
}

// FetchEntryReceipt reads a participant's receipt for a round.
// ErrAccountNotFound means the participant never entered that round.
func (g *Gateway) FetchEntryReceipt(ctx context.Context, participant Address, roundID uint64) (EntryReceipt, error) {
	addr, err := g.EntryReceiptAddress(participant, roundID)
	if err != nil {
		return EntryReceipt{}, err
	}
	data, err := g.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return EntryReceipt{}, fmt.Errorf("fetch entry receipt: %w", err)
	}
	return DecodeEntryReceipt(data)
}

// FetchTicket reads the ticket at (round, index).
func (g *Gateway) FetchTicket(ctx context.Context, roundID, ticketIndex uint64) (Ticket, error) {
	addr, err := g.TicketAddress(roundID, ticketIndex)
	if err != nil {
		return Ticket{}, err
	}
	data, err := g.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return Ticket{}, fmt.Errorf("fetch ticket: %w", err)
	}
	ticket, err := DecodeTicket(data)
	if err != nil {
		return Ticket{}, err
	}
	if ticket.BoolAnomaly {
		g.log.WithField("round_id", ticket.RoundID).
			WithField("ticket_index", ticket.TicketIndex).
			Warn("ticket isWinner byte outside {0,1}; treating as true")
	}
	return ticket, nil
}

// PotBalance returns the pot vault's lamport balance.
func (g *Gateway) PotBalance(ctx context.Context) (uint64, error) {
	return g.client.GetBalance(ctx, g.potVault)
}

// CurrentSlot returns the ledger's current slot.
func (g *Gateway) CurrentSlot(ctx context.Context) (uint64, error) {
	return g.client.GetSlot(ctx)
}

// SubmitRequestDraw submits the request_draw instruction.
func (g *Gateway) SubmitRequestDraw(ctx context.Context) (string, error) {
	authority, err := g.requireSigner()
	if err != nil {
		return "", err
	}
	return g.submit(ctx, g.program.RequestDraw(authority, g.roundState, g.oracleQueue))
}

// SubmitPayout submits the payout instruction for the winning ticket.
func (g *Gateway) SubmitPayout(ctx context.Context, platformWallet, winningTicket, winner Address) (string, error) {
	authority, err := g.requireSigner()
	if err != nil {
		return "", err
	}
	return g.submit(ctx, g.program.Payout(authority, g.roundState, g.potVault, platformWallet, winningTicket, winner))
}

// SubmitReset rolls over an expired round with no participants.
func (g *Gateway) SubmitReset(ctx context.Context) (string, error) {
	authority, err := g.requireSigner()
	if err != nil {
		return "", err
	}
	return g.submit(ctx, g.program.Reset(authority, g.roundState))
}

// SubmitUpdateConfig submits a configuration change.
func (g *Gateway) SubmitUpdateConfig(ctx context.Context, upd ConfigUpdate) (string, error) {
	authority, err := g.requireSigner()
	if err != nil {
		return "", err
	}
	return g.submit(ctx, g.program.UpdateConfig(authority, g.roundState, upd))
}

// Confirm waits for a signature to reach the confirmed level under the
// gateway's bounded attempt budget. An execution error is fatal; a budget
// exhaustion surfaces as retry.ErrBudgetExhausted.
func (g *Gateway) Confirm(ctx context.Context, signature string) error {
	return retry.Poll(ctx, g.confirmAttempts, g.confirmInterval, func(ctx context.Context) (bool, error) {
		statuses, err := g.client.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			return false, err
		}
		if len(statuses) == 0 || statuses[0] == nil {
			return false, nil
		}
		if statuses[0].Failed() {
			return false, retry.Fatal(fmt.Errorf("%w: transaction %s failed: %s",
				ErrInstructionRejected, signature, statuses[0].Err))
		}
		return statuses[0].Confirmed(), nil
	})
}

func (g *Gateway) requireSigner() (Address, error) {
	if g.signer == nil {
		return Address{}, fmt.Errorf("gateway is read-only: no signer configured")
	}
	return g.signer.PublicKey(), nil
}

func (g *Gateway) submit(ctx context.Context, instr Instruction) (string, error) {
	blockhash, err := g.client.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := BuildTransaction(instr, blockhash, g.signer)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	signature, err := g.client.SendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}
	g.log.WithField("signature", signature).Debug("transaction submitted")
	return signature, nil
}
