// Package chain provides Solana ledger interaction for the lottery service:
// program-derived addresses, account decoding, instruction building, and a
// JSON-RPC client.
package chain

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// Address is a 32-byte ledger account address (ed25519 public key or PDA).
type Address [32]byte

// SystemProgramID is the native system program (all-zero key).
var SystemProgramID = Address{}

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	raw := base58.Decode(s)
	if len(raw) != 32 {
		return Address{}, fmt.Errorf("invalid address %q: decoded to %d bytes, want 32", s, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress parses a base58 address and panics on failure. For
// constants and tests only.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return base58.Encode(a[:]) }

// Bytes returns the raw 32-byte key.
func (a Address) Bytes() []byte { return a[:] }

// IsZero reports whether the address is the all-zero key.
func (a Address) IsZero() bool { return a == Address{} }

// Short returns a truncated form for logs and user-facing display.
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

// MarshalText implements encoding.TextMarshaler so addresses render as
// base58 in JSON payloads.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
