package queues

import (
	"context"
	"encoding/base64"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/thewoodfish/vielProof/internal/app/attest"
)

// AcceptedMessage is the wire shape published for every signed attestation.
// The submitter needs the full proof bytes to build the verifier instruction.
type AcceptedMessage struct {
	Attestation     attest.Wire `json:"attestation"`
	SignatureBase64 string      `json:"signature_base64"`
	ProofBase64     string      `json:"proof_base64"`
}

// Publisher writes accepted attestations to the bridge exchange. It satisfies
// the HTTP layer's AttestationPublisher interface.
type Publisher struct {
	ch     *amqp.Channel
	logger zerolog.Logger
}

func NewPublisher(conn *amqp.Connection, logger zerolog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := DeclareTopology(ch); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, logger: logger}, nil
}

func (p *Publisher) PublishAccepted(ctx context.Context, att *attest.Attestation, proof []byte) error {
	body, err := json.Marshal(AcceptedMessage{
		Attestation:     att.ToWire(),
		SignatureBase64: att.SignatureBase64(),
		ProofBase64:     base64.StdEncoding.EncodeToString(proof),
	})
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKeyAccepted,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	p.logger.Info().
		Uint64("program_id", att.ExpectedProgramID).
		Uint64("proposal_id", att.ExpectedProposalID).
		Msg("published accepted attestation")
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
