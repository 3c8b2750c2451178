package server

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/thewoodfish/vielProof/internal/app/attest"
	"github.com/thewoodfish/vielProof/internal/app/engine"
	"github.com/thewoodfish/vielProof/internal/app/pipeline"
)

// Build assembles the handler graph and returns a router ready to serve.
// publisher may be nil when the service runs without a submission queue.
func Build(eng engine.Engine, signer *attest.Signer, trustedVKHash [32]byte, publisher AttestationPublisher, logger zerolog.Logger) *gin.Engine {
	p := pipeline.New(eng, signer, trustedVKHash, logger)
	handler := NewBridgeHandler(p, signer, publisher, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	RegisterBridgeRoutes(&router.RouterGroup, handler)
	return router
}
