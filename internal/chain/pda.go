package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
)

// Seed literals used by the lottery program. These are part of the
// addressing contract shared with every client; changing them orphans all
// existing accounts.
const (
	roundStateSeed   = "lottery_state"
	potVaultSeed     = "pot_vault"
	entryReceiptSeed = "user_entry"
	ticketSeed       = "user_ticket"
)

const pdaMarker = "ProgramDerivedAddress"

// Deriver computes program-derived addresses for the lottery program's
// accounts. Derivation is pure: identical inputs always yield identical
// outputs.
type Deriver struct {
	program Address
}

// NewDeriver returns a deriver bound to the given program.
func NewDeriver(program Address) *Deriver {
	return &Deriver{program: program}
}

// RoundState derives the singleton round state account.
func (d *Deriver) RoundState() (Address, uint8, error) {
	return d.find([][]byte{[]byte(roundStateSeed)})
}

// PotVault derives the singleton pot vault account.
func (d *Deriver) PotVault() (Address, uint8, error) {
	return d.find([][]byte{[]byte(potVaultSeed)})
}

// EntryReceipt derives the receipt account for a participant in a round.
func (d *Deriver) EntryReceipt(participant Address, roundID uint64) (Address, uint8, error) {
	return d.find([][]byte{
		[]byte(entryReceiptSeed),
		participant.Bytes(),
		u64LE(roundID),
	})
}

// Ticket derives the ticket account for (round, ticket index).
func (d *Deriver) Ticket(roundID, ticketIndex uint64) (Address, uint8, error) {
	return d.find([][]byte{
		[]byte(ticketSeed),
		u64LE(roundID),
		u64LE(ticketIndex),
	})
}

// find searches bump seeds from 255 downward for the first candidate that
// is not a valid curve point, per the ledger's PDA convention.
func (d *Deriver) find(seeds [][]byte) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(d.program[:])
		h.Write([]byte(pdaMarker))

		var candidate Address
		copy(candidate[:], h.Sum(nil))
		if !isOnCurve(candidate) {
			return candidate, uint8(bump), nil
		}
	}
	return Address{}, 0, fmt.Errorf("no viable bump for seeds (program %s)", d.program)
}

// isOnCurve reports whether the 32 bytes decode to a valid ed25519 point.
// PDAs must not, so they can never have a corresponding private key.
func isOnCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

func u64LE(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
