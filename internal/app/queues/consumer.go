package queues

import (
	"context"
	"encoding/base64"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/thewoodfish/vielProof/internal/app/attest"
)

// AcceptedHandler processes one decoded attestation. Returning an error nacks
// the delivery for redelivery; nil acks it.
type AcceptedHandler func(ctx context.Context, att *attest.Attestation, proof []byte) error

// ConsumeAccepted pulls messages from the accepted queue and feeds them to the
// handler until the context is cancelled or the channel closes. Malformed
// messages are dropped: redelivery would not fix them.
func ConsumeAccepted(ctx context.Context, ch *amqp.Channel, consumerTag string, handler AcceptedHandler, logger zerolog.Logger) error {
	if err := DeclareTopology(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(
		QueueAccepted,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	logger.Info().Str("queue", QueueAccepted).Msg("waiting for attestations")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return amqp.ErrClosed
			}

			att, proof, err := decodeAccepted(d.Body)
			if err != nil {
				logger.Error().Err(err).Msg("dropping malformed attestation message")
				d.Reject(false)
				continue
			}

			if err := handler(ctx, att, proof); err != nil {
				logger.Error().Err(err).
					Uint64("proposal_id", att.ExpectedProposalID).
					Msg("attestation handling failed, requeueing")
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}
}

func decodeAccepted(body []byte) (*attest.Attestation, []byte, error) {
	var msg AcceptedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, nil, err
	}

	att, err := attest.FromWire(msg.Attestation, msg.SignatureBase64)
	if err != nil {
		return nil, nil, err
	}

	proof, err := base64.StdEncoding.DecodeString(msg.ProofBase64)
	if err != nil {
		return nil, nil, err
	}
	return att, proof, nil
}
