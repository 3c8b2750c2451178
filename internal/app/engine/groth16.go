package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
)

// Groth16Engine runs the vote circuit through gnark's Groth16 backend over
// BN254. It holds no per-request state: the trusted setup is read-only, so
// concurrent Prove/Verify calls are safe.
type Groth16Engine struct {
	setup  *TrustedSetup
	logger zerolog.Logger
}

// NewGroth16Engine wraps an already-loaded trusted setup.
func NewGroth16Engine(setup *TrustedSetup, logger zerolog.Logger) *Groth16Engine {
	return &Groth16Engine{setup: setup, logger: logger}
}

// VKHash exposes the trusted verification-key hash for the pipeline.
func (e *Groth16Engine) VKHash() [32]byte {
	return e.setup.VKHash()
}

// Prove generates a YES-vote proof bound to (programID, proposalID) and
// returns the serialized proof, the serialized public witness and the vk hash.
func (e *Groth16Engine) Prove(ctx context.Context, programID, proposalID uint64) (*ProveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer muteGnarkLogs()()

	voterSecret, err := randomVoterSecret()
	if err != nil {
		return nil, fmt.Errorf("draw voter secret: %w", err)
	}

	assignment := &VoteCircuit{
		VoterSecret: voterSecret,
		Choice:      1,
		ProgramID:   programID,
		ProposalID:  proposalID,
	}

	fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}

	proof, err := groth16.Prove(e.setup.ccs, e.setup.pk, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}

	publicWitness, err := fullWitness.Public()
	if err != nil {
		return nil, fmt.Errorf("extract public witness: %w", err)
	}
	publicBytes, err := publicWitness.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize public witness: %w", err)
	}

	vkHash := e.setup.VKHash()
	e.logger.Debug().
		Uint64("program_id", programID).
		Uint64("proposal_id", proposalID).
		Int("proof_bytes", proofBuf.Len()).
		Msg("generated vote proof")

	return &ProveResult{
		Proof:        proofBuf.Bytes(),
		PublicInputs: publicBytes,
		VKHash:       vkHash[:],
	}, nil
}

// Verify checks proofBytes against the trusted verifying key and the supplied
// public witness bytes. A proof that fails to deserialize or fails the
// pairing check is a normal rejection, not an engine fault.
func (e *Groth16Engine) Verify(ctx context.Context, proofBytes, publicInputs []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	defer muteGnarkLogs()()

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		e.logger.Debug().Err(err).Msg("proof bytes failed to deserialize")
		return false, nil
	}

	publicWitness, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return false, fmt.Errorf("allocate witness: %w", err)
	}
	if err := publicWitness.UnmarshalBinary(publicInputs); err != nil {
		e.logger.Debug().Err(err).Msg("public input bytes failed to deserialize")
		return false, nil
	}

	if err := groth16.Verify(proof, e.setup.vk, publicWitness); err != nil {
		e.logger.Debug().Err(err).Msg("groth16 verification rejected proof")
		return false, nil
	}
	return true, nil
}

// randomVoterSecret draws a uniformly random non-zero scalar. The demo flow
// has no voter registry, so the secret only needs to satisfy the circuit's
// non-zero constraint.
func randomVoterSecret() (*big.Int, error) {
	upper := new(big.Int).Sub(ecc.BN254.ScalarField(), big.NewInt(1))
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return nil, err
	}
	return n.Add(n, big.NewInt(1)), nil
}

// muteGnarkLogs silences gnark's internal zerolog logger for the duration of
// a prove/verify call; its compile chatter would otherwise pollute the
// service log stream. Returns the restore function.
func muteGnarkLogs() func() {
	old := gnarklogger.Logger()
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	return func() { gnarklogger.Set(old) }
}
