package attest

import (
	"crypto/ed25519"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer holds the process-wide attestation keypair. It is constructed once at
// startup and injected wherever signatures are produced; regenerating the key
// mid-process would invalidate trust in every attestation already issued, so
// rotation is an operational event, never an implicit one.
type Signer struct {
	key solana.PrivateKey
}

// NewSignerFromKeygenFile loads the keypair from a Solana keygen JSON file
// (the same format solana-keygen writes and the on-chain deploy tooling uses).
func NewSignerFromKeygenFile(path string) (*Signer, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load attestation keypair %q: %w", path, err)
	}
	return &Signer{key: key}, nil
}

// NewEphemeralSigner generates a throwaway keypair. Test use only; a service
// signer must come from a keygen file so the public key stays stable across
// restarts.
func NewEphemeralSigner() (*Signer, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate attestation keypair: %w", err)
	}
	return &Signer{key: key}, nil
}

// Sign produces the detached ed25519 signature over a message hash.
func (s *Signer) Sign(messageHash [32]byte) ([64]byte, error) {
	var sig [64]byte

	raw := ed25519.Sign(ed25519.PrivateKey(s.key), messageHash[:])
	if len(raw) != 64 {
		return sig, fmt.Errorf("unexpected signature length %d", len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

// PublicKey returns the 32-byte ed25519 public key callers embed in
// attestations and on-chain signature-check instructions.
func (s *Signer) PublicKey() [32]byte {
	return [32]byte(s.key.PublicKey())
}

// PublicKeyBase58 renders the trust anchor the way Solana tooling displays it.
func (s *Signer) PublicKeyBase58() string {
	return s.key.PublicKey().String()
}
