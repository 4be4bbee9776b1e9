package chain

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestWriteCompactLen(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		writeCompactLen(&buf, tc.n)
		if !bytes.Equal(buf.Bytes(), tc.want) {
			t.Fatalf("compact(%d) = %x, want %x", tc.n, buf.Bytes(), tc.want)
		}
	}
}

func TestBuildTransactionSignatureVerifies(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("new keypair: %v", err)
	}

	program := testProgram
	instr := NewProgram(program).Reset(kp.PublicKey(), Address{1})

	var blockhash [32]byte
	blockhash[0] = 0xAA

	tx, err := BuildTransaction(instr, blockhash, kp)
	if err != nil {
		t.Fatalf("build transaction: %v", err)
	}

	// Wire format: 1-byte signature count, 64-byte signature, message.
	if tx[0] != 1 {
		t.Fatalf("signature count = %d, want 1", tx[0])
	}
	signature := tx[1:65]
	message := tx[65:]

	pub := ed25519.PublicKey(kp.PublicKey().Bytes())
	if !ed25519.Verify(pub, message, signature) {
		t.Fatalf("signature does not verify against message")
	}
}

func TestBuildTransactionAccountTable(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("new keypair: %v", err)
	}

	roundState := Address{1}
	oracle := Address{2}
	instr := NewProgram(testProgram).RequestDraw(kp.PublicKey(), roundState, oracle)

	keys, header := collectAccounts(instr, kp.PublicKey())

	// Fee payer first, then writable non-signers, program id last.
	if keys[0] != kp.PublicKey() {
		t.Fatalf("first key = %s, want fee payer", keys[0])
	}
	if keys[len(keys)-1] != testProgram {
		t.Fatalf("last key = %s, want program id", keys[len(keys)-1])
	}
	if header[0] != 1 {
		t.Fatalf("required signatures = %d, want 1", header[0])
	}
	if header[1] != 0 {
		t.Fatalf("readonly signed = %d, want 0", header[1])
	}
	if header[2] != 1 {
		t.Fatalf("readonly unsigned = %d, want 1 (program id)", header[2])
	}
	if len(keys) != 4 {
		t.Fatalf("account table has %d keys, want 4", len(keys))
	}
}

func TestBuildTransactionRequiresSigner(t *testing.T) {
	instr := NewProgram(testProgram).Reset(Address{1}, Address{2})
	if _, err := BuildTransaction(instr, [32]byte{}, nil); err == nil {
		t.Fatalf("expected error without signer")
	}
}

func TestEnterLotteryAccountList(t *testing.T) {
	participant := Address{1}
	instr := NewProgram(testProgram).EnterLottery(participant, Address{2}, Address{3}, Address{4}, Address{5})

	if len(instr.Accounts) != 6 {
		t.Fatalf("account count = %d, want 6", len(instr.Accounts))
	}
	first := instr.Accounts[0]
	if first.Address != participant || !first.Signer || !first.Writable {
		t.Fatalf("participant meta = %+v, want writable signer first", first)
	}
	last := instr.Accounts[5]
	if last.Address != SystemProgramID || last.Signer || last.Writable {
		t.Fatalf("system account meta = %+v, want readonly non-signer last", last)
	}
	if !bytes.Equal(instr.Data, discriminator(ixEnterLottery)) {
		t.Fatalf("data is not the bare instruction discriminator")
	}
}

func TestDiscriminatorStable(t *testing.T) {
	a := discriminator(ixRequestDraw)
	b := discriminator(ixRequestDraw)
	if !bytes.Equal(a, b) {
		t.Fatalf("discriminator not stable: %x vs %x", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("discriminator length = %d, want 8", len(a))
	}
	if bytes.Equal(a, discriminator(ixPayout)) {
		t.Fatalf("distinct instructions share a discriminator")
	}
}

func TestUpdateConfigOptionEncoding(t *testing.T) {
	price := uint64(5_000_000)
	instr := NewProgram(testProgram).UpdateConfig(Address{1}, Address{2}, ConfigUpdate{
		TicketPrice: &price,
	})

	data := instr.Data
	if len(data) != 8+1+8+1+1+1 {
		t.Fatalf("data length = %d", len(data))
	}
	if data[8] != 1 {
		t.Fatalf("ticket price presence tag = %d, want 1", data[8])
	}
	// Remaining optionals absent.
	for i, off := range []int{17, 18, 19} {
		if data[off] != 0 {
			t.Fatalf("optional %d presence tag = %d, want 0", i, data[off])
		}
	}
}
