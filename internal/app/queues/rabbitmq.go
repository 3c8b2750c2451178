// Package queues carries accepted attestations from the verification service
// to the chain submitter over RabbitMQ. The topology is a single direct
// exchange with one routing key per event kind.
package queues

import (
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// ExchangeName is the direct exchange all bridge events flow through.
	ExchangeName = "veilproof"

	// RoutingKeyAccepted carries attestations that passed verification and
	// were signed.
	RoutingKeyAccepted = "attestation.accepted"

	// QueueAccepted is the submitter's queue, bound to RoutingKeyAccepted.
	QueueAccepted = "attestation.accepted"
)

// ConnectToRabbitmq dials the broker with exponential backoff. The broker
// usually comes up after the service in compose setups.
func ConnectToRabbitmq(url string, logger zerolog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	// might need to increase on different machines
	maxRetries := 7
	waitTime := 1 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}

		logger.Warn().Err(err).
			Int("attempt", i+1).
			Dur("retry_in", waitTime).
			Msg("rabbitmq dial failed")
		time.Sleep(waitTime)

		waitTime = time.Duration(math.Pow(2, float64(i+1))) * time.Second
	}

	return nil, err
}

// DeclareTopology sets up the exchange, queue and binding on the given
// channel. Both publisher and consumer call this so either side can start
// first.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		QueueAccepted,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	return ch.QueueBind(
		QueueAccepted,
		RoutingKeyAccepted,
		ExchangeName,
		false,
		nil,
	)
}
