// Package config loads the bridge configuration from the environment. A .env
// file is honored when present so local runs match the compose setup.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// SubmitMode selects how the submitter puts attestations on chain.
type SubmitMode string

const (
	// SubmitModeDemo verifies the built instructions locally and logs them
	// instead of sending a transaction.
	SubmitModeDemo SubmitMode = "demo"
	// SubmitModeRPC signs and sends a real transaction over JSON-RPC.
	SubmitModeRPC SubmitMode = "rpc"
)

// Config holds everything both binaries need. Fields without defaults are
// validated by the binary that requires them.
type Config struct {
	// ListenAddr is the HTTP bind address of the bridge server.
	ListenAddr string

	// KeypairFile points at a Solana keygen JSON file holding the process
	// signing key. Empty means an ephemeral key is generated at startup.
	KeypairFile string

	// SetupDir is where the Groth16 proving and verifying keys live.
	SetupDir string

	// AMQPURL is the RabbitMQ broker. Empty disables queue publishing.
	AMQPURL string

	// RPCURL is the Solana JSON-RPC endpoint the submitter talks to.
	RPCURL string

	// ProgramID is the deployed verifier program address (base58).
	ProgramID string

	// StateAccount is the vote-state account the verifier program mutates.
	StateAccount string

	// SubmitMode is demo or rpc.
	SubmitMode SubmitMode
}

// Load reads the environment, after merging a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:   getenvDefault("VEILPROOF_LISTEN_ADDR", ":8080"),
		KeypairFile:  os.Getenv("VEILPROOF_KEYPAIR_FILE"),
		SetupDir:     getenvDefault("VEILPROOF_SETUP_DIR", "setup"),
		AMQPURL:      os.Getenv("VEILPROOF_AMQP_URL"),
		RPCURL:       getenvDefault("VEILPROOF_RPC_URL", "http://localhost:8899"),
		ProgramID:    os.Getenv("VEILPROOF_PROGRAM_ID"),
		StateAccount: os.Getenv("VEILPROOF_STATE_ACCOUNT"),
		SubmitMode:   SubmitMode(getenvDefault("VEILPROOF_SUBMIT_MODE", string(SubmitModeDemo))),
	}

	switch cfg.SubmitMode {
	case SubmitModeDemo, SubmitModeRPC:
	default:
		return nil, fmt.Errorf("VEILPROOF_SUBMIT_MODE must be %q or %q, got %q",
			SubmitModeDemo, SubmitModeRPC, cfg.SubmitMode)
	}

	return cfg, nil
}

// RequireSubmitter validates the fields only the submitter binary needs.
func (c *Config) RequireSubmitter() error {
	if c.AMQPURL == "" {
		return fmt.Errorf("VEILPROOF_AMQP_URL is required")
	}
	if c.ProgramID == "" {
		return fmt.Errorf("VEILPROOF_PROGRAM_ID is required")
	}
	if c.StateAccount == "" {
		return fmt.Errorf("VEILPROOF_STATE_ACCOUNT is required")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
