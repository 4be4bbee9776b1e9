package chain

import (
	"bytes"
	"fmt"
)

// AccountMeta describes how an instruction touches an account.
type AccountMeta struct {
	Address  Address
	Signer   bool
	Writable bool
}

// Instruction is a single program invocation with its account list and
// serialized argument data.
type Instruction struct {
	ProgramID Address
	Accounts  []AccountMeta
	Data      []byte
}

// BuildTransaction assembles and signs a legacy-format transaction with the
// signer as fee payer. The wire format is: compact array of signatures,
// then the message (header, compact account keys, recent blockhash, compact
// instructions).
func BuildTransaction(instr Instruction, recentBlockhash [32]byte, signer Signer) ([]byte, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer required")
	}

	keys, header := collectAccounts(instr, signer.PublicKey())

	var msg bytes.Buffer
	msg.Write(header[:])
	writeCompactLen(&msg, len(keys))
	for _, k := range keys {
		msg.Write(k.Bytes())
	}
	msg.Write(recentBlockhash[:])

	writeCompactLen(&msg, 1) // instruction count
	programIdx, ok := indexOf(keys, instr.ProgramID)
	if !ok {
		return nil, fmt.Errorf("program id missing from account table")
	}
	msg.WriteByte(byte(programIdx))
	writeCompactLen(&msg, len(instr.Accounts))
	for _, meta := range instr.Accounts {
		idx, ok := indexOf(keys, meta.Address)
		if !ok {
			return nil, fmt.Errorf("account %s missing from account table", meta.Address)
		}
		msg.WriteByte(byte(idx))
	}
	writeCompactLen(&msg, len(instr.Data))
	msg.Write(instr.Data)

	signature, err := signer.Sign(msg.Bytes())
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	if len(signature) != 64 {
		return nil, fmt.Errorf("signature must be 64 bytes, got %d", len(signature))
	}

	var tx bytes.Buffer
	writeCompactLen(&tx, 1) // signature count
	tx.Write(signature)
	tx.Write(msg.Bytes())
	return tx.Bytes(), nil
}

// collectAccounts orders the message account table: the fee payer first,
// then writable non-signers, then readonly non-signers (program id last
// among them). Returns the table and the 3-byte message header.
func collectAccounts(instr Instruction, payer Address) ([]Address, [3]byte) {
	seen := map[Address]AccountMeta{
		payer: {Address: payer, Signer: true, Writable: true},
	}
	order := []Address{payer}

	add := func(meta AccountMeta) {
		existing, ok := seen[meta.Address]
		if !ok {
			seen[meta.Address] = meta
			order = append(order, meta.Address)
			return
		}
		// Merge privileges: any mention as signer/writable wins.
		existing.Signer = existing.Signer || meta.Signer
		existing.Writable = existing.Writable || meta.Writable
		seen[meta.Address] = existing
	}

	for _, meta := range instr.Accounts {
		add(meta)
	}
	add(AccountMeta{Address: instr.ProgramID})

	var writableSigners, readonlySigners, writable, readonly []Address
	for _, addr := range order {
		meta := seen[addr]
		switch {
		case meta.Signer && meta.Writable:
			writableSigners = append(writableSigners, addr)
		case meta.Signer:
			readonlySigners = append(readonlySigners, addr)
		case meta.Writable:
			writable = append(writable, addr)
		default:
			readonly = append(readonly, addr)
		}
	}

	keys := make([]Address, 0, len(order))
	keys = append(keys, writableSigners...)
	keys = append(keys, readonlySigners...)
	keys = append(keys, writable...)
	keys = append(keys, readonly...)

	header := [3]byte{
		byte(len(writableSigners) + len(readonlySigners)),
		byte(len(readonlySigners)),
		byte(len(readonly)),
	}
	return keys, header
}

func indexOf(keys []Address, addr Address) (int, bool) {
	for i, k := range keys {
		if k == addr {
			return i, true
		}
	}
	return 0, false
}

// writeCompactLen writes the ledger's compact-u16 length prefix.
func writeCompactLen(buf *bytes.Buffer, n int) {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
