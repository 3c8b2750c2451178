// Package onchain packages attestations into the two Solana instructions the
// verifier program expects in one atomic transaction: a native ed25519
// signature-verification instruction and the verifier-program instruction
// whose data the program hashes back into the attested message.
package onchain

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/thewoodfish/vielProof/internal/app/attest"
)

// Ed25519ProgramID is Solana's native ed25519 signature-verification program.
var Ed25519ProgramID = solana.MustPublicKeyFromBase58("Ed25519SigVerify111111111111111111111111111")

// currentInstruction is the sentinel instruction index meaning "this
// instruction's own data"; the on-chain program rejects anything else.
const currentInstruction = uint16(0xFFFF)

const (
	ed25519HeaderLen  = 2  // count + padding
	ed25519OffsetsLen = 14 // three (offset, index) pairs plus message size
	sigOffset         = ed25519HeaderLen + ed25519OffsetsLen
	pubkeyOffset      = sigOffset + 64
	messageOffset     = pubkeyOffset + 32
	ed25519DataLen    = messageOffset + 32
)

// AttestationInstructions is the pair to submit together; Ed25519 must come
// first so the verifier program finds it at a lower instruction index when it
// walks the instructions sysvar.
type AttestationInstructions struct {
	Ed25519  solana.Instruction
	Verifier solana.Instruction
}

// BuildInstructions encodes an accepted attestation for submission. proof may
// be empty when the proof itself is not replayed on-chain; the attestation
// signature already commits to its hash.
func BuildInstructions(verifierProgram, stateAccount solana.PublicKey, att *attest.Attestation, proof []byte) (*AttestationInstructions, error) {
	if att == nil {
		return nil, fmt.Errorf("attestation is required")
	}

	ed25519Ix := BuildEd25519Instruction(att.SignerPublicKey, att.Signature, att.MessageHash)

	data, err := EncodeVerifierData(att, proof)
	if err != nil {
		return nil, err
	}
	verifierIx := solana.NewInstruction(
		verifierProgram,
		solana.AccountMetaSlice{
			solana.Meta(stateAccount).WRITE(),
			solana.Meta(solana.SysVarInstructionsPubkey),
		},
		data,
	)

	return &AttestationInstructions{Ed25519: ed25519Ix, Verifier: verifierIx}, nil
}

// BuildEd25519Instruction lays out the native program's data: a one-signature
// header, the offset table with all instruction indexes pointing at this
// instruction, then signature, public key and the 32-byte message hash.
func BuildEd25519Instruction(pubkey [32]byte, signature [64]byte, messageHash [32]byte) solana.Instruction {
	data := make([]byte, 0, ed25519DataLen)
	data = append(data, 1, 0) // count, padding

	data = binary.LittleEndian.AppendUint16(data, uint16(sigOffset))
	data = binary.LittleEndian.AppendUint16(data, currentInstruction)
	data = binary.LittleEndian.AppendUint16(data, uint16(pubkeyOffset))
	data = binary.LittleEndian.AppendUint16(data, currentInstruction)
	data = binary.LittleEndian.AppendUint16(data, uint16(messageOffset))
	data = binary.LittleEndian.AppendUint16(data, 32) // message size
	data = binary.LittleEndian.AppendUint16(data, currentInstruction)

	data = append(data, signature[:]...)
	data = append(data, pubkey[:]...)
	data = append(data, messageHash[:]...)

	// The ed25519 program reads no accounts; everything is in the data.
	return solana.NewInstruction(Ed25519ProgramID, solana.AccountMetaSlice{}, data)
}

// EncodeVerifierData produces the verifier-program instruction data:
// program_id u64le || proposal_id u64le || vk_hash(32) ||
// public_inputs_hash(32) || signature(64) || proof_len u32le || proof.
func EncodeVerifierData(att *attest.Attestation, proof []byte) ([]byte, error) {
	if len(proof) > int(^uint32(0)) {
		return nil, fmt.Errorf("proof too large for u32 length prefix")
	}

	data := make([]byte, 0, 8+8+32+32+64+4+len(proof))
	data = binary.LittleEndian.AppendUint64(data, att.ExpectedProgramID)
	data = binary.LittleEndian.AppendUint64(data, att.ExpectedProposalID)
	data = append(data, att.VKHash[:]...)
	data = append(data, att.PublicInputsHash[:]...)
	data = append(data, att.Signature[:]...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(proof)))
	data = append(data, proof...)
	return data, nil
}

// Ed25519Parts is the decoded content of an ed25519 instruction, used by the
// demo submitter and tests to re-run the on-chain program's checks locally.
type Ed25519Parts struct {
	Signature [64]byte
	PublicKey [32]byte
	Message   [32]byte
}

// ParseEd25519Instruction applies the same structural rules the verifier
// program enforces when it introspects the instructions sysvar.
func ParseEd25519Instruction(data []byte) (*Ed25519Parts, error) {
	if len(data) < ed25519HeaderLen+ed25519OffsetsLen {
		return nil, fmt.Errorf("ed25519 instruction data too short: %d bytes", len(data))
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("expected exactly 1 signature, got %d", data[0])
	}

	sigOff := binary.LittleEndian.Uint16(data[2:4])
	sigIx := binary.LittleEndian.Uint16(data[4:6])
	pubOff := binary.LittleEndian.Uint16(data[6:8])
	pubIx := binary.LittleEndian.Uint16(data[8:10])
	msgOff := binary.LittleEndian.Uint16(data[10:12])
	msgSize := binary.LittleEndian.Uint16(data[12:14])
	msgIx := binary.LittleEndian.Uint16(data[14:16])

	if sigIx != currentInstruction || pubIx != currentInstruction || msgIx != currentInstruction {
		return nil, fmt.Errorf("instruction indexes must reference the current instruction")
	}
	if msgSize != 32 {
		return nil, fmt.Errorf("message size must be 32, got %d", msgSize)
	}
	if len(data) < int(sigOff)+64 || len(data) < int(pubOff)+32 || len(data) < int(msgOff)+int(msgSize) {
		return nil, fmt.Errorf("offsets exceed instruction data length %d", len(data))
	}

	var parts Ed25519Parts
	copy(parts.Signature[:], data[sigOff:sigOff+64])
	copy(parts.PublicKey[:], data[pubOff:pubOff+32])
	copy(parts.Message[:], data[msgOff:msgOff+32])
	return &parts, nil
}
