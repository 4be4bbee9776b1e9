package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when account data is shorter than the layout
// requires. Decoders never return a partially populated record.
var ErrTruncated = errors.New("account data truncated")

// Account layouts are fixed sequences of little-endian fields behind an
// 8-byte type tag. Sizes below include the tag.
const (
	accountTagLen      = 8
	roundStateMinLen   = accountTagLen + 32*3 + 2 + 8 + 8 + 8 + 8 + 1 + 8 + 8 + 1 + 1 // 165
	entryReceiptMinLen = accountTagLen + 32 + 8 + 8 + 1                               // 57
	ticketMinLen       = accountTagLen + 32 + 8 + 8 + 1 + 8 + 1                       // 66
)

// RoundState is the program's singleton round record. It is mutated in
// place by the program and rolled over as part of payout.
type RoundState struct {
	Authority         Address
	PotVault          Address
	PlatformWallet    Address
	PlatformFeeBps    uint16
	TicketPrice       uint64
	WinnerTicketIndex uint64 // 0 = undrawn; otherwise actual index + 1
	RoundID           uint64
	TotalParticipants uint64
	IsDrawing         bool
	EndTimestamp      uint64 // unix seconds
	CommitSlot        uint64
	RoundStateSalt    uint8
	PotVaultSalt      uint8

	// BoolAnomaly is set when the isDrawing byte was neither 0 nor 1.
	// The value still reads as true; callers should log the anomaly.
	BoolAnomaly bool
}

// HasWinner reports whether a winner has been resolved for the round.
func (r RoundState) HasWinner() bool { return r.WinnerTicketIndex != 0 }

// WinningTicketIndex returns the 0-based index of the winning ticket.
// Only meaningful when HasWinner is true.
func (r RoundState) WinningTicketIndex() uint64 { return r.WinnerTicketIndex - 1 }

// EntryReceipt proves a wallet entered a specific round.
type EntryReceipt struct {
	Participant  Address
	RoundID      uint64
	TicketNumber uint64 // 0-indexed, assigned as totalParticipants at entry
	Salt         uint8
}

// Ticket is the per-entry record within a round. The winning ticket is
// flagged during payout, not at entry time.
type Ticket struct {
	Owner       Address
	RoundID     uint64
	TicketIndex uint64
	IsWinner    bool
	PrizeAmount uint64
	Salt        uint8

	BoolAnomaly bool
}

// DecodeRoundState decodes a raw round state account buffer.
func DecodeRoundState(data []byte) (RoundState, error) {
	if len(data) < roundStateMinLen {
		return RoundState{}, fmt.Errorf("round state: %w: got %d bytes, need %d", ErrTruncated, len(data), roundStateMinLen)
	}

	r := newReader(data[accountTagLen:])
	var out RoundState
	out.Authority = r.address()
	out.PotVault = r.address()
	out.PlatformWallet = r.address()
	out.PlatformFeeBps = r.u16()
	out.TicketPrice = r.u64()
	out.WinnerTicketIndex = r.u64()
	out.RoundID = r.u64()
	out.TotalParticipants = r.u64()
	out.IsDrawing, out.BoolAnomaly = r.boolByte()
	out.EndTimestamp = r.u64()
	out.CommitSlot = r.u64()
	out.RoundStateSalt = r.u8()
	out.PotVaultSalt = r.u8()
	return out, nil
}

// DecodeEntryReceipt decodes a raw entry receipt account buffer.
func DecodeEntryReceipt(data []byte) (EntryReceipt, error) {
	if len(data) < entryReceiptMinLen {
		return EntryReceipt{}, fmt.Errorf("entry receipt: %w: got %d bytes, need %d", ErrTruncated, len(data), entryReceiptMinLen)
	}

	r := newReader(data[accountTagLen:])
	var out EntryReceipt
	out.Participant = r.address()
	out.RoundID = r.u64()
	out.TicketNumber = r.u64()
	out.Salt = r.u8()
	return out, nil
}

// DecodeTicket decodes a raw ticket account buffer.
func DecodeTicket(data []byte) (Ticket, error) {
	if len(data) < ticketMinLen {
		return Ticket{}, fmt.Errorf("ticket: %w: got %d bytes, need %d", ErrTruncated, len(data), ticketMinLen)
	}

	r := newReader(data[accountTagLen:])
	var out Ticket
	out.Owner = r.address()
	out.RoundID = r.u64()
	out.TicketIndex = r.u64()
	out.IsWinner, out.BoolAnomaly = r.boolByte()
	out.PrizeAmount = r.u64()
	out.Salt = r.u8()
	return out, nil
}

// reader walks a buffer whose length was validated up front.
type reader struct {
	buf []byte
	off int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) address() Address {
	var a Address
	copy(a[:], r.buf[r.off:r.off+32])
	r.off += 32
	return a
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

// boolByte decodes a boolean field. Any nonzero value reads as true, but
// values other than 0/1 are flagged as an anomaly.
func (r *reader) boolByte() (value, anomaly bool) {
	b := r.u8()
	return b != 0, b > 1
}
