package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// encodeRoundState builds a synthetic account buffer matching the program's
// layout, with the isDrawing byte taken verbatim.
func encodeRoundState(t *testing.T, state RoundState, drawingByte byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(make([]byte, accountTagLen))
	buf.Write(state.Authority.Bytes())
	buf.Write(state.PotVault.Bytes())
	buf.Write(state.PlatformWallet.Bytes())
	le := binary.LittleEndian

	var u16b [2]byte
	le.PutUint16(u16b[:], state.PlatformFeeBps)
	buf.Write(u16b[:])

	for _, v := range []uint64{state.TicketPrice, state.WinnerTicketIndex, state.RoundID, state.TotalParticipants} {
		var b [8]byte
		le.PutUint64(b[:], v)
		buf.Write(b[:])
	}
	buf.WriteByte(drawingByte)
	for _, v := range []uint64{state.EndTimestamp, state.CommitSlot} {
		var b [8]byte
		le.PutUint64(b[:], v)
		buf.Write(b[:])
	}
	buf.WriteByte(state.RoundStateSalt)
	buf.WriteByte(state.PotVaultSalt)
	return buf.Bytes()
}

func encodeTicket(t *testing.T, ticket Ticket, winnerByte byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(make([]byte, accountTagLen))
	buf.Write(ticket.Owner.Bytes())
	le := binary.LittleEndian
	for _, v := range []uint64{ticket.RoundID, ticket.TicketIndex} {
		var b [8]byte
		le.PutUint64(b[:], v)
		buf.Write(b[:])
	}
	buf.WriteByte(winnerByte)
	var b [8]byte
	le.PutUint64(b[:], ticket.PrizeAmount)
	buf.Write(b[:])
	buf.WriteByte(ticket.Salt)
	return buf.Bytes()
}

func encodeEntryReceipt(t *testing.T, receipt EntryReceipt) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(make([]byte, accountTagLen))
	buf.Write(receipt.Participant.Bytes())
	le := binary.LittleEndian
	for _, v := range []uint64{receipt.RoundID, receipt.TicketNumber} {
		var b [8]byte
		le.PutUint64(b[:], v)
		buf.Write(b[:])
	}
	buf.WriteByte(receipt.Salt)
	return buf.Bytes()
}

func TestDecodeRoundStateRoundTrip(t *testing.T) {
	want := RoundState{
		Authority:         testProgram,
		PotVault:          Address{1, 2, 3},
		PlatformWallet:    Address{4, 5, 6},
		PlatformFeeBps:    250,
		TicketPrice:       10_000_000,
		WinnerTicketIndex: 8,
		RoundID:           5,
		TotalParticipants: 12,
		IsDrawing:         false,
		EndTimestamp:      1_700_000_000,
		CommitSlot:        987_654,
		RoundStateSalt:    254,
		PotVaultSalt:      253,
	}

	got, err := DecodeRoundState(encodeRoundState(t, want, 0))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("decoded state mismatch:\n got %+v\nwant %+v", got, want)
	}
	if !got.HasWinner() || got.WinningTicketIndex() != 7 {
		t.Fatalf("winner helpers wrong: hasWinner=%v index=%d", got.HasWinner(), got.WinningTicketIndex())
	}
}

func TestDecodeRoundStateDrawingByte(t *testing.T) {
	state := RoundState{RoundID: 1}

	got, err := DecodeRoundState(encodeRoundState(t, state, 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsDrawing || got.BoolAnomaly {
		t.Fatalf("byte 1: IsDrawing=%v anomaly=%v", got.IsDrawing, got.BoolAnomaly)
	}

	got, err = DecodeRoundState(encodeRoundState(t, state, 0))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.IsDrawing || got.BoolAnomaly {
		t.Fatalf("byte 0: IsDrawing=%v anomaly=%v", got.IsDrawing, got.BoolAnomaly)
	}

	// Out-of-range boolean bytes read as true but flag an anomaly.
	got, err = DecodeRoundState(encodeRoundState(t, state, 7))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsDrawing || !got.BoolAnomaly {
		t.Fatalf("byte 7: IsDrawing=%v anomaly=%v", got.IsDrawing, got.BoolAnomaly)
	}
}

func TestDecodeRoundStateTruncated(t *testing.T) {
	full := encodeRoundState(t, RoundState{}, 0)

	for _, n := range []int{0, accountTagLen, roundStateMinLen - 1} {
		if _, err := DecodeRoundState(full[:n]); !errors.Is(err, ErrTruncated) {
			t.Fatalf("len %d: want ErrTruncated, got %v", n, err)
		}
	}
}

func TestDecodeTicketRoundTrip(t *testing.T) {
	want := Ticket{
		Owner:       Address{9, 9, 9},
		RoundID:     5,
		TicketIndex: 7,
		IsWinner:    true,
		PrizeAmount: 2_000_000_000,
		Salt:        251,
	}

	got, err := DecodeTicket(encodeTicket(t, want, 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("decoded ticket mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestDecodeTicketTruncated(t *testing.T) {
	full := encodeTicket(t, Ticket{}, 0)
	if _, err := DecodeTicket(full[:ticketMinLen-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}

func TestDecodeEntryReceiptRoundTrip(t *testing.T) {
	want := EntryReceipt{
		Participant:  Address{7, 7, 7},
		RoundID:      6,
		TicketNumber: 3,
		Salt:         252,
	}

	got, err := DecodeEntryReceipt(encodeEntryReceipt(t, want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("decoded receipt mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestDecodeEntryReceiptTruncated(t *testing.T) {
	if _, err := DecodeEntryReceipt(nil); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}
