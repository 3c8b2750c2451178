package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thewoodfish/vielProof/internal/app/attest"
	"github.com/thewoodfish/vielProof/internal/app/canonical"
	"github.com/thewoodfish/vielProof/internal/app/engine"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type scriptedEngine struct {
	verifyOK  bool
	verifyErr error
}

func (e *scriptedEngine) Prove(ctx context.Context, programID, proposalID uint64) (*engine.ProveResult, error) {
	return &engine.ProveResult{
		Proof:        []byte("proof"),
		PublicInputs: []byte("inputs"),
		VKHash:       testVKHash[:],
	}, nil
}

func (e *scriptedEngine) Verify(ctx context.Context, proofBytes, publicInputs []byte) (bool, error) {
	return e.verifyOK, e.verifyErr
}

var testVKHash = func() [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = byte(i * 3)
	}
	return h
}()

func newTestRouter(t *testing.T, eng engine.Engine) (*gin.Engine, *attest.Signer) {
	t.Helper()

	signer, err := attest.NewEphemeralSigner()
	require.NoError(t, err)
	return Build(eng, signer, testVKHash, nil, zerolog.New(io.Discard)), signer
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func verifyBody(vkHashHex string) map[string]interface{} {
	return map[string]interface{}{
		"proof_bytes_base64": base64.StdEncoding.EncodeToString([]byte("proof")),
		"public_inputs_json": map[string]interface{}{
			"expected_program_id":  "7",
			"expected_proposal_id": "42",
			"raw":                  base64.StdEncoding.EncodeToString([]byte("inputs")),
		},
		"vk_hash_hex":          vkHashHex,
		"expected_program_id":  "7",
		"expected_proposal_id": "42",
	}
}

func TestVerifyEndpointAccepts(t *testing.T) {
	router, signer := newTestRouter(t, &scriptedEngine{verifyOK: true})

	w := postJSON(t, router, "/api/v1/proof/verify", verifyBody(hex.EncodeToString(testVKHash[:])))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK          bool        `json:"ok"`
		Attestation attest.Wire `json:"attestation"`
		Signature   string      `json:"signature_base64"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "ed25519", resp.Attestation.Scheme)
	assert.Equal(t, "7", resp.Attestation.ExpectedProgramID)
	assert.Equal(t, "42", resp.Attestation.ExpectedProposalID)
	assert.Equal(t, hex.EncodeToString(testVKHash[:]), resp.Attestation.VKHashHex)

	pub := signer.PublicKey()
	msgHash, err := hex.DecodeString(resp.Attestation.MessageHashHex)
	require.NoError(t, err)
	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub[:]), msgHash, sig))
}

func TestVerifyEndpointVKMismatch(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedEngine{verifyOK: true})

	// One hex character off.
	bad := []byte(hex.EncodeToString(testVKHash[:]))
	if bad[0] == '0' {
		bad[0] = '1'
	} else {
		bad[0] = '0'
	}

	w := postJSON(t, router, "/api/v1/proof/verify", verifyBody(string(bad)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "vk_hash mismatch", resp["error"])
	_, hasSignature := resp["signature_base64"]
	assert.False(t, hasSignature, "rejections must not carry a signature")
}

func TestVerifyEndpointEngineRejection(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedEngine{verifyOK: false})

	w := postJSON(t, router, "/api/v1/proof/verify", verifyBody(hex.EncodeToString(testVKHash[:])))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestVerifyEndpointEnvironmentError(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedEngine{verifyErr: errors.New("engine down")})

	w := postJSON(t, router, "/api/v1/proof/verify", verifyBody(hex.EncodeToString(testVKHash[:])))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGenerateEndpointAcceptsNumericIdentifiers(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedEngine{})

	w := postJSON(t, router, "/api/v1/proof/generate", map[string]interface{}{
		"proposal_id": 42,
		"program_id":  "7",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK    bool `json:"ok"`
		Proof struct {
			PublicInputs struct {
				ExpectedProgramID  string `json:"expected_program_id"`
				ExpectedProposalID string `json:"expected_proposal_id"`
				Raw                string `json:"raw"`
			} `json:"publicInputs"`
			Proof  string `json:"proof"`
			VKHash string `json:"vkHash"`
		} `json:"proof"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "7", resp.Proof.PublicInputs.ExpectedProgramID)
	assert.Equal(t, "42", resp.Proof.PublicInputs.ExpectedProposalID)
	assert.Equal(t, hex.EncodeToString(testVKHash[:]), resp.Proof.VKHash)
}

func TestSignerEndpoint(t *testing.T) {
	router, signer := newTestRouter(t, &scriptedEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signer", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp signerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	pub := signer.PublicKey()
	assert.Equal(t, hex.EncodeToString(pub[:]), resp.SignerPubkeyHex)
	assert.Equal(t, hex.EncodeToString(testVKHash[:]), resp.VKHashHex)
}

// Full round trip through the real Groth16 engine: generate a proof for
// (7, 42), verify it, and recompute the signed preimage from scratch.
func TestEndToEndGenerateThenVerify(t *testing.T) {
	setup, err := engine.LoadOrCreateSetup(t.TempDir())
	require.NoError(t, err)
	eng := engine.NewGroth16Engine(setup, zerolog.New(io.Discard))

	signer, err := attest.NewEphemeralSigner()
	require.NoError(t, err)
	router := Build(eng, signer, setup.VKHash(), nil, zerolog.New(io.Discard))

	w := postJSON(t, router, "/api/v1/proof/generate", map[string]interface{}{
		"proposal_id": "42",
		"program_id":  "7",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var gen struct {
		OK    bool `json:"ok"`
		Proof struct {
			PublicInputs struct {
				ExpectedProgramID  string `json:"expected_program_id"`
				ExpectedProposalID string `json:"expected_proposal_id"`
				Raw                string `json:"raw"`
			} `json:"publicInputs"`
			Proof  string `json:"proof"`
			VKHash string `json:"vkHash"`
		} `json:"proof"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gen))
	require.True(t, gen.OK)

	publicInputsJSON := map[string]interface{}{
		"expected_program_id":  gen.Proof.PublicInputs.ExpectedProgramID,
		"expected_proposal_id": gen.Proof.PublicInputs.ExpectedProposalID,
		"raw":                  gen.Proof.PublicInputs.Raw,
	}
	w = postJSON(t, router, "/api/v1/proof/verify", map[string]interface{}{
		"proof_bytes_base64":   gen.Proof.Proof,
		"public_inputs_json":   publicInputsJSON,
		"vk_hash_hex":          gen.Proof.VKHash,
		"expected_program_id":  "7",
		"expected_proposal_id": "42",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK          bool        `json:"ok"`
		Attestation attest.Wire `json:"attestation"`
		Signature   string      `json:"signature_base64"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	assert.Equal(t, gen.Proof.VKHash, resp.Attestation.VKHashHex)

	// Recompute the preimage exactly as the on-chain program would.
	proofBytes, err := base64.StdEncoding.DecodeString(gen.Proof.Proof)
	require.NoError(t, err)
	vkHash, err := hex.DecodeString(gen.Proof.VKHash)
	require.NoError(t, err)
	canonicalInputs, err := canonical.Canonicalize(normalize(t, publicInputsJSON))
	require.NoError(t, err)

	proofHash := sha256.Sum256(proofBytes)
	inputsHash := sha256.Sum256([]byte(canonicalInputs))

	preimage := []byte("VEILPROOF_V1")
	preimage = binary.LittleEndian.AppendUint64(preimage, 7)
	preimage = binary.LittleEndian.AppendUint64(preimage, 42)
	preimage = append(preimage, vkHash...)
	preimage = append(preimage, proofHash[:]...)
	preimage = append(preimage, inputsHash[:]...)
	want := sha256.Sum256(preimage)

	assert.Equal(t, hex.EncodeToString(want[:]), resp.Attestation.MessageHashHex)

	pub := signer.PublicKey()
	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub[:]), want[:], sig))

	// Tampered proof bytes: engine runs and rejects with 422.
	tampered := append([]byte(nil), proofBytes...)
	tampered[len(tampered)/2] ^= 0x01
	w = postJSON(t, router, "/api/v1/proof/verify", map[string]interface{}{
		"proof_bytes_base64":   base64.StdEncoding.EncodeToString(tampered),
		"public_inputs_json":   publicInputsJSON,
		"vk_hash_hex":          gen.Proof.VKHash,
		"expected_program_id":  "7",
		"expected_proposal_id": "42",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// normalize round-trips a map through JSON with UseNumber so the test hashes
// the same value tree the handler decoded.
func normalize(t *testing.T, m map[string]interface{}) map[string]interface{} {
	t.Helper()

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	require.NoError(t, dec.Decode(&out))
	return out
}
