package onchain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/near/borsh-go"
)

// VerifiedVoteState mirrors the verifier program's borsh-serialized account
// layout: the proposal the account tracks and how many attested YES proofs
// have been recorded against it.
type VerifiedVoteState struct {
	ProposalID uint64
	YesProofs  uint64
}

// DecodeVerifiedVoteState deserializes the on-chain account data.
func DecodeVerifiedVoteState(data []byte) (*VerifiedVoteState, error) {
	var state VerifiedVoteState
	if err := borsh.Deserialize(&state, data); err != nil {
		return nil, fmt.Errorf("decode verified vote state: %w", err)
	}
	return &state, nil
}

// FetchVoteState reads and decodes the vote state account over RPC.
func FetchVoteState(ctx context.Context, client *rpc.Client, stateAccount solana.PublicKey) (*VerifiedVoteState, error) {
	info, err := client.GetAccountInfo(ctx, stateAccount)
	if err != nil {
		return nil, fmt.Errorf("fetch state account %s: %w", stateAccount, err)
	}
	if info.Value == nil {
		return nil, fmt.Errorf("state account %s does not exist", stateAccount)
	}
	return DecodeVerifiedVoteState(info.Value.Data.GetBinary())
}
