package pipeline

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thewoodfish/vielProof/internal/app/attest"
	"github.com/thewoodfish/vielProof/internal/app/canonical"
	"github.com/thewoodfish/vielProof/internal/app/engine"
)

// mockEngine returns scripted outcomes and records whether Verify ran, so
// short-circuit properties can assert the engine was never touched.
type mockEngine struct {
	verifyOK    bool
	verifyErr   error
	verifyCalls int
	proveResult *engine.ProveResult
	proveErr    error
}

func (m *mockEngine) Prove(ctx context.Context, programID, proposalID uint64) (*engine.ProveResult, error) {
	if m.proveErr != nil {
		return nil, m.proveErr
	}
	return m.proveResult, nil
}

func (m *mockEngine) Verify(ctx context.Context, proofBytes, publicInputs []byte) (bool, error) {
	m.verifyCalls++
	return m.verifyOK, m.verifyErr
}

var trustedVKHash = func() [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = byte(0xA0 + i)
	}
	return h
}()

func newTestPipeline(t *testing.T, eng engine.Engine) (*Pipeline, *attest.Signer) {
	t.Helper()

	signer, err := attest.NewEphemeralSigner()
	require.NoError(t, err)
	return New(eng, signer, trustedVKHash, zerolog.New(io.Discard)), signer
}

func validRequest() *VerifyRequest {
	return &VerifyRequest{
		ProofBytesBase64: base64.StdEncoding.EncodeToString([]byte("proof-bytes")),
		PublicInputsJSON: map[string]interface{}{
			"expected_program_id":  "7",
			"expected_proposal_id": "42",
			"raw":                  base64.StdEncoding.EncodeToString([]byte("public-inputs")),
		},
		VKHashHex:          hex.EncodeToString(trustedVKHash[:]),
		ExpectedProgramID:  "7",
		ExpectedProposalID: "42",
	}
}

func TestVerifyAcceptedProducesValidSignature(t *testing.T) {
	eng := &mockEngine{verifyOK: true}
	p, signer := newTestPipeline(t, eng)

	att, perr := p.Verify(context.Background(), validRequest())
	require.Nil(t, perr)
	require.NotNil(t, att)

	assert.Equal(t, "ed25519", att.Scheme)
	assert.Equal(t, uint64(7), att.ExpectedProgramID)
	assert.Equal(t, uint64(42), att.ExpectedProposalID)
	assert.Equal(t, trustedVKHash, att.VKHash)

	pub := signer.PublicKey()
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub[:]), att.MessageHash[:], att.Signature[:]))
}

func TestVerifyMessageHashMatchesRecomputation(t *testing.T) {
	eng := &mockEngine{verifyOK: true}
	p, _ := newTestPipeline(t, eng)
	req := validRequest()

	att, perr := p.Verify(context.Background(), req)
	require.Nil(t, perr)

	canonicalInputs, err := canonical.Canonicalize(req.PublicInputsJSON)
	require.NoError(t, err)
	proofBytes, err := base64.StdEncoding.DecodeString(req.ProofBytesBase64)
	require.NoError(t, err)

	want, err := attest.BuildMessageHash(7, 42, trustedVKHash[:], proofBytes, canonicalInputs)
	require.NoError(t, err)
	assert.Equal(t, want, att.MessageHash)
}

func TestVerifyVKHashMismatchShortCircuits(t *testing.T) {
	eng := &mockEngine{verifyOK: true}
	p, _ := newTestPipeline(t, eng)

	req := validRequest()
	wrong := append([]byte(nil), trustedVKHash[:]...)
	wrong[0] ^= 0x01
	req.VKHashHex = hex.EncodeToString(wrong)

	att, perr := p.Verify(context.Background(), req)
	assert.Nil(t, att)
	require.NotNil(t, perr)
	assert.Equal(t, KindInput, perr.Kind)
	assert.Equal(t, "vk_hash mismatch", perr.Message)
	assert.Zero(t, eng.verifyCalls, "engine must never run with an untrusted key reference")
}

func TestVerifyVKHashComparedAsBytesNotText(t *testing.T) {
	eng := &mockEngine{verifyOK: true}
	p, _ := newTestPipeline(t, eng)

	// Uppercase hex decodes to the same bytes and must be accepted.
	req := validRequest()
	req.VKHashHex = string(bytesToUpperHex(trustedVKHash[:]))

	att, perr := p.Verify(context.Background(), req)
	require.Nil(t, perr)
	assert.NotNil(t, att)
}

func bytesToUpperHex(b []byte) []byte {
	s := hex.EncodeToString(b)
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

func TestVerifyIdentifierMismatchShortCircuits(t *testing.T) {
	eng := &mockEngine{verifyOK: true}
	p, _ := newTestPipeline(t, eng)

	req := validRequest()
	req.PublicInputsJSON["expected_proposal_id"] = "43"

	att, perr := p.Verify(context.Background(), req)
	assert.Nil(t, att)
	require.NotNil(t, perr)
	assert.Equal(t, KindInput, perr.Kind)
	assert.Contains(t, perr.Message, "expected_proposal_id mismatch")
	assert.Zero(t, eng.verifyCalls)
}

func TestVerifyEngineRejectionIsVerificationFailure(t *testing.T) {
	eng := &mockEngine{verifyOK: false}
	p, _ := newTestPipeline(t, eng)

	att, perr := p.Verify(context.Background(), validRequest())
	assert.Nil(t, att)
	require.NotNil(t, perr)
	assert.Equal(t, KindVerification, perr.Kind)
	assert.Equal(t, 1, eng.verifyCalls)
}

func TestVerifyEngineFaultIsEnvironmentError(t *testing.T) {
	eng := &mockEngine{verifyErr: errors.New("engine binary missing")}
	p, _ := newTestPipeline(t, eng)

	att, perr := p.Verify(context.Background(), validRequest())
	assert.Nil(t, att)
	require.NotNil(t, perr)
	assert.Equal(t, KindEnvironment, perr.Kind)
}

func TestVerifyMissingFields(t *testing.T) {
	eng := &mockEngine{verifyOK: true}
	p, _ := newTestPipeline(t, eng)

	cases := map[string]func(*VerifyRequest){
		"missing proof":       func(r *VerifyRequest) { r.ProofBytesBase64 = "" },
		"bad proof base64":    func(r *VerifyRequest) { r.ProofBytesBase64 = "!!!" },
		"missing inputs":      func(r *VerifyRequest) { r.PublicInputsJSON = nil },
		"missing raw":         func(r *VerifyRequest) { delete(r.PublicInputsJSON, "raw") },
		"bad raw base64":      func(r *VerifyRequest) { r.PublicInputsJSON["raw"] = "!!!" },
		"missing vk hash":     func(r *VerifyRequest) { r.VKHashHex = "" },
		"short vk hash":       func(r *VerifyRequest) { r.VKHashHex = "abcd" },
		"bad program id":      func(r *VerifyRequest) { r.ExpectedProgramID = "seven" },
		"negative program id": func(r *VerifyRequest) { r.ExpectedProgramID = "-1" },
		"oversized id":        func(r *VerifyRequest) { r.ExpectedProposalID = "18446744073709551616" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(req)

			att, perr := p.Verify(context.Background(), req)
			assert.Nil(t, att)
			require.NotNil(t, perr)
			assert.Equal(t, KindInput, perr.Kind)
		})
	}
	assert.Zero(t, eng.verifyCalls, "malformed input must never reach the engine")
}

func TestGenerateMapsEngineFault(t *testing.T) {
	eng := &mockEngine{proveErr: errors.New("setup not found")}
	p, _ := newTestPipeline(t, eng)

	res, perr := p.Generate(context.Background(), "7", "42")
	assert.Nil(t, res)
	require.NotNil(t, perr)
	assert.Equal(t, KindEnvironment, perr.Kind)
}

func TestGenerateValidatesIdentifiers(t *testing.T) {
	eng := &mockEngine{proveResult: &engine.ProveResult{Proof: []byte("p"), PublicInputs: []byte("i"), VKHash: make([]byte, 32)}}
	p, _ := newTestPipeline(t, eng)

	_, perr := p.Generate(context.Background(), "7x", "42")
	require.NotNil(t, perr)
	assert.Equal(t, KindInput, perr.Kind)

	res, perr := p.Generate(context.Background(), "7", "42")
	require.Nil(t, perr)
	assert.Equal(t, []byte("p"), res.ProofBytes)
}
