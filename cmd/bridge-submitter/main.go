package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/thewoodfish/vielProof/internal/app/attest"
	"github.com/thewoodfish/vielProof/internal/app/config"
	"github.com/thewoodfish/vielProof/internal/app/onchain"
	"github.com/thewoodfish/vielProof/internal/app/queues"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "bridge-submitter").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := cfg.RequireSubmitter(); err != nil {
		logger.Fatal().Err(err).Msg("incomplete configuration")
	}

	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		logger.Fatal().Err(err).Msg("VEILPROOF_PROGRAM_ID is not a valid address")
	}
	stateAccount, err := solana.PublicKeyFromBase58(cfg.StateAccount)
	if err != nil {
		logger.Fatal().Err(err).Msg("VEILPROOF_STATE_ACCOUNT is not a valid address")
	}

	client := rpc.New(cfg.RPCURL)
	submitter, err := newSubmitter(cfg, client, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("submitter setup failed")
	}

	conn, err := queues.ConnectToRabbitmq(cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq unreachable")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq channel failed")
	}
	defer ch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := func(ctx context.Context, att *attest.Attestation, proof []byte) error {
		ixs, err := onchain.BuildInstructions(programID, stateAccount, att, proof)
		if err != nil {
			return err
		}

		sig, err := submitter.Submit(ctx, ixs)
		if err != nil {
			return err
		}
		logger.Info().
			Str("tx", sig).
			Uint64("proposal_id", att.ExpectedProposalID).
			Msg("attestation submitted")

		if cfg.SubmitMode == config.SubmitModeRPC {
			logVoteState(ctx, client, stateAccount, logger)
		}
		return nil
	}

	if err := queues.ConsumeAccepted(ctx, ch, "bridge-submitter", handler, logger); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("consumer stopped")
	}
	logger.Info().Msg("shutting down")
}

func newSubmitter(cfg *config.Config, client *rpc.Client, logger zerolog.Logger) (onchain.Submitter, error) {
	if cfg.SubmitMode == config.SubmitModeDemo {
		return onchain.NewDemoSubmitter(logger), nil
	}

	payer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairFile)
	if err != nil {
		return nil, err
	}
	return onchain.NewRPCSubmitter(client, payer, logger), nil
}

// logVoteState reads back the tally so operators can watch yes_proofs advance.
func logVoteState(ctx context.Context, client *rpc.Client, stateAccount solana.PublicKey, logger zerolog.Logger) {
	state, err := onchain.FetchVoteState(ctx, client, stateAccount)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read vote state")
		return
	}
	logger.Info().
		Uint64("proposal_id", state.ProposalID).
		Uint64("yes_proofs", state.YesProofs).
		Msg("vote state")
}
