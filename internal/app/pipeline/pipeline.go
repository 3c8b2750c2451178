// Package pipeline drives one verification request through the fixed state
// sequence Received → FieldsValidated → VkHashMatched → ProofAccepted →
// HashesComputed → Signed → Responded. Any failure drops straight to a
// terminal rejection carrying a taxonomy kind; callers never see a partial
// state.
package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/thewoodfish/vielProof/internal/app/attest"
	"github.com/thewoodfish/vielProof/internal/app/canonical"
	"github.com/thewoodfish/vielProof/internal/app/engine"
)

type state string

const (
	stateReceived        state = "Received"
	stateFieldsValidated state = "FieldsValidated"
	stateVkHashMatched   state = "VkHashMatched"
	stateProofAccepted   state = "ProofAccepted"
	stateHashesComputed  state = "HashesComputed"
	stateSigned          state = "Signed"
)

// VerifyRequest is the typed form of the verify operation's input. Identifier
// fields are decimal strings; the HTTP layer normalizes JSON integers into
// them before handing the request over.
type VerifyRequest struct {
	ProofBytesBase64   string
	PublicInputsJSON   map[string]interface{}
	VKHashHex          string
	ExpectedProgramID  string
	ExpectedProposalID string
}

// GenerateResult carries the artifacts of the proof-generation path.
type GenerateResult struct {
	ProofBytes      []byte
	PublicInputsRaw []byte
	VKHash          []byte
}

// Pipeline owns the per-request orchestration. Its dependencies are all
// process-wide and read-only: the engine, the signer and the trusted vk hash.
type Pipeline struct {
	engine        engine.Engine
	signer        *attest.Signer
	trustedVKHash [32]byte
	logger        zerolog.Logger
}

// New wires the pipeline's injected capabilities.
func New(eng engine.Engine, signer *attest.Signer, trustedVKHash [32]byte, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		engine:        eng,
		signer:        signer,
		trustedVKHash: trustedVKHash,
		logger:        logger,
	}
}

// TrustedVKHashHex renders the trusted verification-key hash for callers that
// want to pin it (the signer info endpoint, mostly).
func (p *Pipeline) TrustedVKHashHex() string {
	return hex.EncodeToString(p.trustedVKHash[:])
}

// Generate produces a fresh proof for (programID, proposalID). Identifier
// strings are validated here so the engine only ever sees in-range values.
func (p *Pipeline) Generate(ctx context.Context, programIDStr, proposalIDStr string) (*GenerateResult, *Error) {
	programID, err := parseID("program_id", programIDStr)
	if err != nil {
		return nil, err
	}
	proposalID, err := parseID("proposal_id", proposalIDStr)
	if err != nil {
		return nil, err
	}

	result, proveErr := p.engine.Prove(ctx, programID, proposalID)
	if proveErr != nil {
		p.logger.Error().Err(proveErr).Msg("proof engine unavailable during generation")
		return nil, environmentError("proof generation failed", proveErr)
	}

	return &GenerateResult{
		ProofBytes:      result.Proof,
		PublicInputsRaw: result.PublicInputs,
		VKHash:          result.VKHash,
	}, nil
}

// Verify runs one request through the state machine and either returns a
// fully signed attestation or the first rejection encountered. All temporary
// artifacts live in a uniquely named workdir that is removed on every exit
// path.
func (p *Pipeline) Verify(ctx context.Context, req *VerifyRequest) (*attest.Attestation, *Error) {
	run := &verification{pipeline: p, req: req, state: stateReceived}
	defer run.cleanup()

	steps := []func(context.Context) *Error{
		run.validateFields,
		run.matchVKHash,
		run.checkProof,
		run.computeHashes,
		run.sign,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			run.reject(err)
			return nil, err
		}
	}

	p.logger.Info().
		Uint64("program_id", run.programID).
		Uint64("proposal_id", run.proposalID).
		Str("message_hash", hex.EncodeToString(run.messageHash[:])).
		Msg("attestation issued")
	return run.attestation, nil
}

// verification is the request-scoped state. It exclusively owns the workdir
// and the intermediate artifacts; nothing here outlives the request.
type verification struct {
	pipeline *Pipeline
	req      *VerifyRequest
	state    state

	workdir         string
	proofBytes      []byte
	publicInputsRaw []byte
	callerVKHash    []byte
	programID       uint64
	proposalID      uint64
	canonicalInputs string
	messageHash     [32]byte
	attestation     *attest.Attestation
}

func (v *verification) advance(next state) {
	v.pipeline.logger.Debug().
		Str("from", string(v.state)).
		Str("to", string(next)).
		Msg("pipeline transition")
	v.state = next
}

func (v *verification) reject(err *Error) {
	evt := v.pipeline.logger.Info()
	if err.Kind == KindEnvironment || err.Kind == KindSigning {
		evt = v.pipeline.logger.Error()
	}
	evt.Str("state", string(v.state)).
		Str("kind", err.Kind.String()).
		Str("reason", err.Message).
		Msg("verification rejected")
}

// validateFields: Received → FieldsValidated. Everything must be present,
// decodable and in range before any cryptographic work starts.
func (v *verification) validateFields(context.Context) *Error {
	if v.req.ProofBytesBase64 == "" {
		return inputError("proof_bytes_base64 is required")
	}
	proofBytes, err := base64.StdEncoding.DecodeString(v.req.ProofBytesBase64)
	if err != nil {
		return inputError("proof_bytes_base64 is not valid base64")
	}
	v.proofBytes = proofBytes

	if v.req.PublicInputsJSON == nil {
		return inputError("public_inputs_json is required")
	}
	rawField, ok := v.req.PublicInputsJSON["raw"]
	if !ok {
		return inputError("public_inputs_json.raw is required")
	}
	rawStr, ok := rawField.(string)
	if !ok {
		return inputError("public_inputs_json.raw must be a base64 string")
	}
	rawBytes, err := base64.StdEncoding.DecodeString(rawStr)
	if err != nil {
		return inputError("public_inputs_json.raw is not valid base64")
	}
	v.publicInputsRaw = rawBytes

	programID, perr := parseID("expected_program_id", v.req.ExpectedProgramID)
	if perr != nil {
		return perr
	}
	proposalID, perr := parseID("expected_proposal_id", v.req.ExpectedProposalID)
	if perr != nil {
		return perr
	}
	v.programID = programID
	v.proposalID = proposalID

	// Identifiers embedded in the public-inputs document must agree with the
	// request-level fields, compared as decimal strings.
	if perr := v.checkEmbeddedID("expected_program_id", v.req.ExpectedProgramID); perr != nil {
		return perr
	}
	if perr := v.checkEmbeddedID("expected_proposal_id", v.req.ExpectedProposalID); perr != nil {
		return perr
	}

	v.advance(stateFieldsValidated)
	return nil
}

func (v *verification) checkEmbeddedID(field, requestValue string) *Error {
	embedded, ok := v.req.PublicInputsJSON[field]
	if !ok {
		return nil
	}

	var embeddedStr string
	switch val := embedded.(type) {
	case string:
		embeddedStr = val
	case json.Number:
		embeddedStr = val.String()
	default:
		return inputError("public_inputs_json.%s must be a decimal string", field)
	}

	if embeddedStr != requestValue {
		return inputError("%s mismatch between request and public inputs", field)
	}
	return nil
}

// matchVKHash: FieldsValidated → VkHashMatched. The comparison is over raw
// decoded bytes so hex case differences cannot be abused, and a mismatch
// short-circuits before the engine is ever invoked.
func (v *verification) matchVKHash(context.Context) *Error {
	if v.req.VKHashHex == "" {
		return inputError("vk_hash_hex is required")
	}
	callerHash, err := hex.DecodeString(v.req.VKHashHex)
	if err != nil || len(callerHash) != 32 {
		return inputError("vk_hash_hex must be 32 hex-encoded bytes")
	}

	if !bytes.Equal(callerHash, v.pipeline.trustedVKHash[:]) {
		return inputError("vk_hash mismatch")
	}
	v.callerVKHash = callerHash

	v.advance(stateVkHashMatched)
	return nil
}

// checkProof: VkHashMatched → ProofAccepted. The engine invocation is
// seconds-scale and blocking, so it runs as its own task; this request waits
// on it without holding anything other requests need.
func (v *verification) checkProof(ctx context.Context) *Error {
	if err := v.stageArtifacts(); err != nil {
		return err
	}

	type verdict struct {
		ok  bool
		err error
	}
	done := make(chan verdict, 1)
	go func() {
		ok, err := v.pipeline.engine.Verify(ctx, v.proofBytes, v.publicInputsRaw)
		done <- verdict{ok: ok, err: err}
	}()

	res := <-done
	if res.err != nil {
		return environmentError("proof engine unavailable", res.err)
	}
	if !res.ok {
		return verificationFailure("proof verification failed")
	}

	v.advance(stateProofAccepted)
	return nil
}

// stageArtifacts materializes the request's proof and public-input bytes in
// an isolated workdir. The engine runs in-process today, but the artifacts
// are staged the same way an external engine would consume them, and the
// workdir guarantees one request's files never bleed into another's.
func (v *verification) stageArtifacts() *Error {
	workdir, err := os.MkdirTemp("", "veilproof-verify-*")
	if err != nil {
		return environmentError("create request workdir", err)
	}
	v.workdir = workdir

	if err := os.WriteFile(filepath.Join(workdir, "proof.bin"), v.proofBytes, 0o600); err != nil {
		return environmentError("stage proof artifact", err)
	}
	if err := os.WriteFile(filepath.Join(workdir, "public_inputs.bin"), v.publicInputsRaw, 0o600); err != nil {
		return environmentError("stage public inputs artifact", err)
	}
	return nil
}

func (v *verification) cleanup() {
	if v.workdir == "" {
		return
	}
	if err := os.RemoveAll(v.workdir); err != nil {
		v.pipeline.logger.Error().Err(err).Str("workdir", v.workdir).Msg("failed to remove request workdir")
	}
}

// computeHashes: ProofAccepted → HashesComputed. Canonicalization and the
// message hash are pure; a failure here means the input map held something
// non-JSON and is still a caller problem.
func (v *verification) computeHashes(context.Context) *Error {
	canonicalInputs, err := canonical.Canonicalize(v.req.PublicInputsJSON)
	if err != nil {
		return inputError("public_inputs_json is not canonicalizable: %v", err)
	}
	v.canonicalInputs = canonicalInputs

	messageHash, err := attest.BuildMessageHash(v.programID, v.proposalID, v.callerVKHash, v.proofBytes, canonicalInputs)
	if err != nil {
		return inputError("message hash: %v", err)
	}
	v.messageHash = messageHash

	v.advance(stateHashesComputed)
	return nil
}

// sign: HashesComputed → Signed. Failure here is fatal; no attestation
// object exists until the signature does.
func (v *verification) sign(context.Context) *Error {
	if v.pipeline.signer == nil {
		return signingFailure("attestation signer not configured", nil)
	}

	signature, err := v.pipeline.signer.Sign(v.messageHash)
	if err != nil {
		return signingFailure("sign message hash", err)
	}

	var vkHash [32]byte
	copy(vkHash[:], v.callerVKHash)

	v.attestation = &attest.Attestation{
		Scheme:             attest.Scheme,
		SignerPublicKey:    v.pipeline.signer.PublicKey(),
		MessageHash:        v.messageHash,
		ExpectedProgramID:  v.programID,
		ExpectedProposalID: v.proposalID,
		VKHash:             vkHash,
		ProofHash:          attest.HashProof(v.proofBytes),
		PublicInputsHash:   attest.HashPublicInputs(v.canonicalInputs),
		Signature:          signature,
	}

	v.advance(stateSigned)
	return nil
}

// parseID enforces the hard rejection policy for identifiers: decimal, no
// sign, must fit 64 bits. Nothing is ever truncated to fit.
func parseID(field, value string) (uint64, *Error) {
	if value == "" {
		return 0, inputError("%s is required", field)
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, inputError("%s must be an unsigned 64-bit decimal integer", field)
	}
	return id, nil
}
