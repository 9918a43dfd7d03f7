package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consume reads change notifications from queue until ctx is done.
// Messages fn rejects are dead-lettered.
func Consume(ctx context.Context, url, queue string, logger *slog.Logger, fn func(ChangeMessage) error) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareQueues(ch, queue); err != nil {
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		return err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}
			settle(d, d.Body, logger, fn)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d acknowledger, body []byte, logger *slog.Logger, fn func(ChangeMessage) error) {
	var m ChangeMessage
	if err := json.Unmarshal(body, &m); err != nil || m.Seq == 0 {
		logger.Warn("bad change message", "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := fn(m); err != nil {
		logger.Warn("change handler failed", "seq", m.Seq, "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		logger.Warn("ack failed", "seq", m.Seq, "error", err)
	}
}
