// Package server is the HTTP boundary of the attestation bridge. Handlers
// translate between the wire shapes and the pipeline; every failure leaves as
// a {error} body with a status derived from the pipeline's taxonomy.
package server

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/thewoodfish/vielProof/internal/app/attest"
	"github.com/thewoodfish/vielProof/internal/app/pipeline"
)

// AttestationPublisher forwards accepted attestations to the submission side.
// A nil publisher disables the hand-off; verification itself never depends on
// the queue being up.
type AttestationPublisher interface {
	PublishAccepted(ctx context.Context, att *attest.Attestation, proof []byte) error
}

type BridgeHandler struct {
	pipeline  *pipeline.Pipeline
	signer    *attest.Signer
	publisher AttestationPublisher
	logger    zerolog.Logger
}

func NewBridgeHandler(p *pipeline.Pipeline, signer *attest.Signer, publisher AttestationPublisher, logger zerolog.Logger) *BridgeHandler {
	return &BridgeHandler{pipeline: p, signer: signer, publisher: publisher, logger: logger}
}

// GenerateProof handles POST /api/v1/proof/generate.
func (h *BridgeHandler) GenerateProof(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	result, perr := h.pipeline.Generate(c.Request.Context(), string(req.ProgramID), string(req.ProposalID))
	if perr != nil {
		c.JSON(statusForKind(perr.Kind), errorResponse{Error: perr.Message})
		return
	}

	c.JSON(http.StatusOK, generateResponse{
		OK: true,
		Proof: generatedProof{
			PublicInputs: generatedPublicInputs{
				ExpectedProgramID:  string(req.ProgramID),
				ExpectedProposalID: string(req.ProposalID),
				Raw:                base64.StdEncoding.EncodeToString(result.PublicInputsRaw),
			},
			Proof:  base64.StdEncoding.EncodeToString(result.ProofBytes),
			VKHash: hex.EncodeToString(result.VKHash),
		},
	})
}

// VerifyProof handles POST /api/v1/proof/verify.
func (h *BridgeHandler) VerifyProof(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	publicInputs, err := decodePublicInputs(req.PublicInputsJSON)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "public_inputs_json is not a JSON object"})
		return
	}

	att, perr := h.pipeline.Verify(c.Request.Context(), &pipeline.VerifyRequest{
		ProofBytesBase64:   req.ProofBytesBase64,
		PublicInputsJSON:   publicInputs,
		VKHashHex:          req.VKHashHex,
		ExpectedProgramID:  string(req.ExpectedProgramID),
		ExpectedProposalID: string(req.ExpectedProposalID),
	})
	if perr != nil {
		c.JSON(statusForKind(perr.Kind), errorResponse{Error: perr.Message})
		return
	}

	h.publishAccepted(c.Request.Context(), att, req.ProofBytesBase64)

	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"attestation":      att.ToWire(),
		"signature_base64": att.SignatureBase64(),
	})
}

// publishAccepted hands the attestation to the submission queue. Failures are
// logged, not surfaced: the caller already holds a valid attestation.
func (h *BridgeHandler) publishAccepted(ctx context.Context, att *attest.Attestation, proofBase64 string) {
	if h.publisher == nil {
		return
	}
	proof, err := base64.StdEncoding.DecodeString(proofBase64)
	if err != nil {
		proof = nil
	}
	if err := h.publisher.PublishAccepted(ctx, att, proof); err != nil {
		h.logger.Error().Err(err).Msg("failed to publish accepted attestation")
	}
}

// SignerInfo handles GET /api/v1/signer: the trust anchor plus the trusted
// vk hash, so operators and clients can pin both.
func (h *BridgeHandler) SignerInfo(c *gin.Context) {
	pub := h.signer.PublicKey()
	c.JSON(http.StatusOK, signerResponse{
		Scheme:             attest.Scheme,
		SignerPubkeyHex:    hex.EncodeToString(pub[:]),
		SignerPubkeyBase58: h.signer.PublicKeyBase58(),
		VKHashHex:          h.pipeline.TrustedVKHashHex(),
	})
}

// Healthz handles GET /healthz.
func (h *BridgeHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusForKind(k pipeline.Kind) int {
	switch k {
	case pipeline.KindInput:
		return http.StatusBadRequest
	case pipeline.KindVerification:
		return http.StatusUnprocessableEntity
	case pipeline.KindEnvironment:
		return http.StatusServiceUnavailable
	case pipeline.KindSigning:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
