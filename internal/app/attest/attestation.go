package attest

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Scheme is the only signature scheme attestations are issued under.
const Scheme = "ed25519"

// Attestation is the signed claim that a proof for (program, proposal) passed
// off-chain verification. It is built once per accepted verification and never
// stored by the service; the response it is embedded in is its whole lifecycle.
type Attestation struct {
	Scheme             string
	SignerPublicKey    [32]byte
	MessageHash        [32]byte
	ExpectedProgramID  uint64
	ExpectedProposalID uint64
	VKHash             [32]byte
	ProofHash          [32]byte
	PublicInputsHash   [32]byte
	Signature          [64]byte
}

// Wire is the JSON shape the verify endpoint returns. Field names are
// normative for wire compatibility with the demo client and CLI scripts.
type Wire struct {
	Scheme              string `json:"scheme"`
	SignerPubkeyHex     string `json:"signer_pubkey_hex"`
	MessageHashHex      string `json:"message_hash_hex"`
	ExpectedProgramID   string `json:"expected_program_id"`
	ExpectedProposalID  string `json:"expected_proposal_id"`
	VKHashHex           string `json:"vk_hash_hex"`
	ProofHashHex        string `json:"proof_hash_hex"`
	PublicInputsHashHex string `json:"public_inputs_hash_hex"`
}

// ToWire renders the attestation for the HTTP response. Identifiers are
// decimal strings so 64-bit values survive JSON number handling intact.
func (a *Attestation) ToWire() Wire {
	return Wire{
		Scheme:              a.Scheme,
		SignerPubkeyHex:     hex.EncodeToString(a.SignerPublicKey[:]),
		MessageHashHex:      hex.EncodeToString(a.MessageHash[:]),
		ExpectedProgramID:   formatID(a.ExpectedProgramID),
		ExpectedProposalID:  formatID(a.ExpectedProposalID),
		VKHashHex:           hex.EncodeToString(a.VKHash[:]),
		ProofHashHex:        hex.EncodeToString(a.ProofHash[:]),
		PublicInputsHashHex: hex.EncodeToString(a.PublicInputsHash[:]),
	}
}

// SignatureBase64 renders the detached signature for the response envelope.
func (a *Attestation) SignatureBase64() string {
	return base64.StdEncoding.EncodeToString(a.Signature[:])
}

// FromWire rebuilds an attestation from its wire rendering plus the detached
// signature. The submitter uses this to reconstruct what it must put on chain.
func FromWire(w Wire, signatureBase64 string) (*Attestation, error) {
	if w.Scheme != Scheme {
		return nil, fmt.Errorf("unsupported scheme %q", w.Scheme)
	}

	a := &Attestation{Scheme: w.Scheme}

	var err error
	if a.ExpectedProgramID, err = strconv.ParseUint(w.ExpectedProgramID, 10, 64); err != nil {
		return nil, fmt.Errorf("expected_program_id: %w", err)
	}
	if a.ExpectedProposalID, err = strconv.ParseUint(w.ExpectedProposalID, 10, 64); err != nil {
		return nil, fmt.Errorf("expected_proposal_id: %w", err)
	}

	for _, f := range []struct {
		name string
		hex  string
		dst  []byte
	}{
		{"signer_pubkey_hex", w.SignerPubkeyHex, a.SignerPublicKey[:]},
		{"message_hash_hex", w.MessageHashHex, a.MessageHash[:]},
		{"vk_hash_hex", w.VKHashHex, a.VKHash[:]},
		{"proof_hash_hex", w.ProofHashHex, a.ProofHash[:]},
		{"public_inputs_hash_hex", w.PublicInputsHashHex, a.PublicInputsHash[:]},
	} {
		raw, err := hex.DecodeString(f.hex)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if len(raw) != len(f.dst) {
			return nil, fmt.Errorf("%s: want %d bytes, got %d", f.name, len(f.dst), len(raw))
		}
		copy(f.dst, raw)
	}

	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	if len(sig) != len(a.Signature) {
		return nil, fmt.Errorf("signature: want %d bytes, got %d", len(a.Signature), len(sig))
	}
	copy(a.Signature[:], sig)

	return a, nil
}

func formatID(v uint64) string {
	return strconv.FormatUint(v, 10)
}

