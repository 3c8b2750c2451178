package onchain

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
)

// Submitter is the demo/real strategy boundary: the demo path exercises the
// full encoding without a validator, the RPC path submits for real. Selection
// happens once at startup from config, never via a mutable flag.
type Submitter interface {
	Submit(ctx context.Context, ixs *AttestationInstructions) (string, error)
}

// DemoSubmitter validates the encoded instruction pair locally, re-running
// the on-chain program's ed25519 introspection checks plus the actual
// signature verification, and logs what would have been sent.
type DemoSubmitter struct {
	logger zerolog.Logger
}

func NewDemoSubmitter(logger zerolog.Logger) *DemoSubmitter {
	return &DemoSubmitter{logger: logger}
}

func (s *DemoSubmitter) Submit(_ context.Context, ixs *AttestationInstructions) (string, error) {
	data, err := ixs.Ed25519.Data()
	if err != nil {
		return "", fmt.Errorf("ed25519 instruction data: %w", err)
	}
	parts, err := ParseEd25519Instruction(data)
	if err != nil {
		return "", fmt.Errorf("ed25519 instruction malformed: %w", err)
	}
	if !ed25519.Verify(parts.PublicKey[:], parts.Message[:], parts.Signature[:]) {
		return "", fmt.Errorf("attestation signature does not verify")
	}

	verifierData, err := ixs.Verifier.Data()
	if err != nil {
		return "", fmt.Errorf("verifier instruction data: %w", err)
	}

	s.logger.Info().
		Int("ed25519_data_len", len(data)).
		Int("verifier_data_len", len(verifierData)).
		Str("signer", solana.PublicKeyFromBytes(parts.PublicKey[:]).String()).
		Msg("demo mode: transaction validated locally, not submitted")
	return "demo", nil
}

// RPCSubmitter signs and sends the instruction pair as one transaction.
type RPCSubmitter struct {
	client *rpc.Client
	payer  solana.PrivateKey
	logger zerolog.Logger
}

func NewRPCSubmitter(client *rpc.Client, payer solana.PrivateKey, logger zerolog.Logger) *RPCSubmitter {
	return &RPCSubmitter{client: client, payer: payer, logger: logger}
}

func (s *RPCSubmitter) Submit(ctx context.Context, ixs *AttestationInstructions) (string, error) {
	recent, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("fetch recent blockhash: %w", err)
	}

	// The ed25519 instruction must precede the verifier instruction so the
	// program's sysvar walk over earlier indexes finds it.
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ixs.Ed25519, ixs.Verifier},
		recent.Value.Blockhash,
		solana.TransactionPayer(s.payer.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.payer.PublicKey()) {
			return &s.payer
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	s.logger.Info().Str("signature", sig.String()).Msg("attestation transaction submitted")
	return sig.String(), nil
}
