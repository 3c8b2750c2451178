// Package attest turns a passed verification into a compact signed claim the
// on-chain verifier program can check against a single ed25519 signature.
package attest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// DomainTag prefixes every message-hash preimage. Changing the preimage layout
// requires bumping the version suffix, otherwise attestations from different
// protocol versions would collide.
const DomainTag = "VEILPROOF_V1"

// Preimage layout: tag(12) || program_id u64le || proposal_id u64le ||
// vk_hash(32) || sha256(proof)(32) || sha256(canonical public inputs)(32).
const preimageLen = len(DomainTag) + 8 + 8 + 32 + 32 + 32

// BuildMessageHash computes the 32-byte digest the attestation signer signs
// and the verifier program recomputes on-chain. Every field is fixed-width in
// the preimage, so no two distinct inputs can alias into the same byte string.
func BuildMessageHash(programID, proposalID uint64, vkHash, proofBytes []byte, canonicalPublicInputs string) ([32]byte, error) {
	var zero [32]byte

	if len(vkHash) != 32 {
		return zero, fmt.Errorf("vk_hash must be 32 bytes, got %d", len(vkHash))
	}

	proofHash := sha256.Sum256(proofBytes)
	publicInputsHash := sha256.Sum256([]byte(canonicalPublicInputs))

	preimage := make([]byte, 0, preimageLen)
	preimage = append(preimage, DomainTag...)
	preimage = binary.LittleEndian.AppendUint64(preimage, programID)
	preimage = binary.LittleEndian.AppendUint64(preimage, proposalID)
	preimage = append(preimage, vkHash...)
	preimage = append(preimage, proofHash[:]...)
	preimage = append(preimage, publicInputsHash[:]...)

	return sha256.Sum256(preimage), nil
}

// HashProof exposes the intermediate sha256(proof_bytes) so the attestation
// can embed it without the caller re-deriving it.
func HashProof(proofBytes []byte) [32]byte {
	return sha256.Sum256(proofBytes)
}

// HashPublicInputs exposes sha256 over the canonical public-input string.
func HashPublicInputs(canonical string) [32]byte {
	return sha256.Sum256([]byte(canonical))
}
