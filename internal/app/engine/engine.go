// Package engine is the boundary to the zero-knowledge proof system. The rest
// of the service treats it as a black box that produces proof artifacts and
// answers pass/fail; the Groth16 implementation lives behind the same
// interface as any mock used in tests.
package engine

import "context"

// ProveResult carries the artifacts a generation request hands back to the
// caller: serialized proof bytes, the serialized public witness the engine
// consumes on verification, and the hash identifying the verification key the
// proof was produced under.
type ProveResult struct {
	Proof        []byte
	PublicInputs []byte
	VKHash       []byte
}

// Engine is the injected proof-system capability.
//
// Verify reports (false, nil) when the engine ran and rejected the proof; a
// non-nil error means the engine itself is unavailable or misconfigured. The
// pipeline depends on that distinction to keep infrastructure outages from
// masquerading as invalid proofs.
type Engine interface {
	Prove(ctx context.Context, programID, proposalID uint64) (*ProveResult, error)
	Verify(ctx context.Context, proofBytes, publicInputs []byte) (bool, error)
}
