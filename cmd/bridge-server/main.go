package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/thewoodfish/vielProof/internal/app/attest"
	"github.com/thewoodfish/vielProof/internal/app/config"
	"github.com/thewoodfish/vielProof/internal/app/engine"
	"github.com/thewoodfish/vielProof/internal/app/queues"
	"github.com/thewoodfish/vielProof/internal/app/server"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "bridge-server").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	setup, err := engine.LoadOrCreateSetup(cfg.SetupDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.SetupDir).Msg("trusted setup unavailable")
	}
	eng := engine.NewGroth16Engine(setup, logger)

	signer, err := newSigner(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("signer unavailable")
	}
	logger.Info().Str("signer_pubkey", signer.PublicKeyBase58()).Msg("signing key loaded")

	var publisher server.AttestationPublisher
	if cfg.AMQPURL != "" {
		conn, err := queues.ConnectToRabbitmq(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq unreachable")
		}
		defer conn.Close()

		p, err := queues.NewPublisher(conn, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq topology setup failed")
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Warn().Msg("VEILPROOF_AMQP_URL unset, queue publishing disabled")
	}

	router := server.Build(eng, signer, setup.VKHash(), publisher, logger)

	logger.Info().Str("addr", cfg.ListenAddr).Msg("bridge server listening")
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func newSigner(cfg *config.Config, logger zerolog.Logger) (*attest.Signer, error) {
	if cfg.KeypairFile != "" {
		return attest.NewSignerFromKeygenFile(cfg.KeypairFile)
	}
	logger.Warn().Msg("VEILPROOF_KEYPAIR_FILE unset, using an ephemeral signing key")
	return attest.NewEphemeralSigner()
}
