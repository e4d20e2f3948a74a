package probes

import (
	"context"
	"errors"
	"fmt"
	"net"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/osops/oschecks/pkg/types/check"
)

// NewAMQPProbe connects to the message broker and, when a queue name is
// given, passively inspects it and reports its depth as the measurement.
// An empty queue name degrades the check to a plain connection test.
func NewAMQPProbe(uri, queue string) (check.Probe, error) {
	if uri == "" {
		return nil, fmt.Errorf("amqp check requires a broker URI")
	}
	return func(ctx context.Context) (check.Outcome, error) {
		conn, err := amqp.DialConfig(uri, amqp.Config{
			Dial: func(network, addr string) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		})
		if err != nil {
			if o, ok := asBrokerFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			if o, ok := asBrokerFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, fmt.Errorf("opening channel: %w", err)
		}
		defer ch.Close()

		if queue == "" {
			return check.OK("broker connection established"), nil
		}
		q, err := ch.QueueInspect(queue)
		if err != nil {
			if o, ok := asBrokerFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, fmt.Errorf("inspecting queue %q: %w", queue, err)
		}
		return check.Measure(float64(q.Messages), "", "queue %q holds %d messages", queue, q.Messages), nil
	}, nil
}

// asBrokerFailure converts protocol-level broker errors (access refused,
// queue not found) into ServiceFailure outcomes; dial and I/O errors stay
// plain errors.
func asBrokerFailure(err error) (check.Outcome, bool) {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return check.Failed("broker refused: %d %s", amqpErr.Code, amqpErr.Reason), true
	}
	return check.Outcome{}, false
}
