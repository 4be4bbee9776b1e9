package chain

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// Signer is the capability needed to authorize ledger instructions. Only
// the keeper process holds one; read-only consumers pass nil.
type Signer interface {
	PublicKey() Address
	Sign(message []byte) ([]byte, error)
}

// Keypair is a file-backed ed25519 signer.
type Keypair struct {
	pub  Address
	priv ed25519.PrivateKey
}

// LoadKeypair reads a keypair from the standard JSON byte-array format
// produced by the ledger's keygen tooling (64 bytes: seed then public key).
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	var bytes []byte
	if err := json.Unmarshal(raw, &bytes); err != nil {
		return nil, fmt.Errorf("parse keypair file: %w", err)
	}
	return KeypairFromBytes(bytes)
}

// KeypairFromBytes builds a keypair from the 64-byte private key form.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}

	priv := ed25519.PrivateKey(append([]byte(nil), b...))
	var pub Address
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return &Keypair{pub: pub, priv: priv}, nil
}

// NewKeypair generates a fresh keypair. For tests.
func NewKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	var addr Address
	copy(addr[:], pub)
	return &Keypair{pub: addr, priv: priv}, nil
}

// PublicKey returns the signer's address.
func (k *Keypair) PublicKey() Address { return k.pub }

// Sign signs the message with the keypair's private key.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}
