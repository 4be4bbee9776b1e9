package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// Instruction names as registered by the lottery program. The call
// convention prefixes serialized arguments with an 8-byte discriminator
// derived from the instruction name.
const (
	ixEnterLottery = "enter_lottery"
	ixRequestDraw  = "request_draw"
	ixPayout       = "payout"
	ixReset        = "reset"
	ixUpdateConfig = "update_config"
)

func discriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// Program builds instructions against a deployed lottery program.
type Program struct {
	id Address
}

// NewProgram returns an instruction builder for the given program id.
func NewProgram(id Address) *Program {
	return &Program{id: id}
}

// ID returns the program's address.
func (p *Program) ID() Address { return p.id }

// EnterLottery builds the instruction with which a participant buys into
// the current round.
func (p *Program) EnterLottery(participant, roundState, potVault, entryReceipt, ticket Address) Instruction {
	return Instruction{
		ProgramID: p.id,
		Accounts: []AccountMeta{
			{Address: participant, Signer: true, Writable: true},
			{Address: roundState, Writable: true},
			{Address: potVault, Writable: true},
			{Address: entryReceipt, Writable: true},
			{Address: ticket, Writable: true},
			{Address: SystemProgramID},
		},
		Data: discriminator(ixEnterLottery),
	}
}

// RequestDraw builds the authority instruction that asks the randomness
// oracle for a draw.
func (p *Program) RequestDraw(authority, roundState, oracleQueue Address) Instruction {
	return Instruction{
		ProgramID: p.id,
		Accounts: []AccountMeta{
			{Address: authority, Signer: true, Writable: true},
			{Address: roundState, Writable: true},
			{Address: oracleQueue, Writable: true},
		},
		Data: discriminator(ixRequestDraw),
	}
}

// Payout builds the authority instruction that pays the winner and rolls
// the round over. The ledger performs both as one atomic operation.
func (p *Program) Payout(authority, roundState, potVault, platformWallet, winningTicket, winner Address) Instruction {
	return Instruction{
		ProgramID: p.id,
		Accounts: []AccountMeta{
			{Address: authority, Signer: true, Writable: true},
			{Address: roundState, Writable: true},
			{Address: potVault, Writable: true},
			{Address: platformWallet, Writable: true},
			{Address: winningTicket, Writable: true},
			{Address: winner, Writable: true},
			{Address: SystemProgramID},
		},
		Data: discriminator(ixPayout),
	}
}

// Reset builds the authority instruction that rolls over an expired round
// with no participants. The program rejects it for rounds with entries.
func (p *Program) Reset(authority, roundState Address) Instruction {
	return Instruction{
		ProgramID: p.id,
		Accounts: []AccountMeta{
			{Address: authority, Signer: true, Writable: true},
			{Address: roundState, Writable: true},
		},
		Data: discriminator(ixReset),
	}
}

// ConfigUpdate carries the optional fields of an update_config call. Nil
// fields are left unchanged on the ledger.
type ConfigUpdate struct {
	TicketPrice    *uint64
	PlatformFeeBps *uint16
	PlatformWallet *Address
	EndTimestamp   *int64
}

// UpdateConfig builds the authority instruction that adjusts round
// configuration. Optional arguments use the program's 1-byte presence tag
// followed by the little-endian value.
func (p *Program) UpdateConfig(authority, roundState Address, upd ConfigUpdate) Instruction {
	var data bytes.Buffer
	data.Write(discriminator(ixUpdateConfig))

	writeOptU64(&data, upd.TicketPrice)
	writeOptU16(&data, upd.PlatformFeeBps)
	if upd.PlatformWallet == nil {
		data.WriteByte(0)
	} else {
		data.WriteByte(1)
		data.Write(upd.PlatformWallet.Bytes())
	}
	if upd.EndTimestamp == nil {
		data.WriteByte(0)
	} else {
		data.WriteByte(1)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(*upd.EndTimestamp))
		data.Write(buf[:])
	}

	return Instruction{
		ProgramID: p.id,
		Accounts: []AccountMeta{
			{Address: authority, Signer: true},
			{Address: roundState, Writable: true},
		},
		Data: data.Bytes(),
	}
}

func writeOptU64(buf *bytes.Buffer, v *uint64) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], *v)
	buf.Write(b[:])
}

func writeOptU16(buf *bytes.Buffer, v *uint16) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], *v)
	buf.Write(b[:])
}
