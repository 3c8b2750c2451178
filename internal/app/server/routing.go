package server

import (
	"github.com/gin-gonic/gin"
)

// RegisterBridgeRoutes mounts the attestation bridge endpoints.
func RegisterBridgeRoutes(rg *gin.RouterGroup, handler *BridgeHandler) {
	api := rg.Group("/api/v1")
	{
		api.POST("/proof/generate", handler.GenerateProof)
		api.POST("/proof/verify", handler.VerifyProof)
		api.GET("/signer", handler.SignerInfo)
	}

	rg.GET("/healthz", handler.Healthz)
}
