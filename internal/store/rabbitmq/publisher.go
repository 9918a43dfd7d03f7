package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/hackchat/internal/chat"
)

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// ChangeMessage is the wire form of a committed change.
type ChangeMessage struct {
	Seq            uint64    `json:"seq"`
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	At             time.Time `json:"at"`
}

func NewChangeMessage(c chat.Change) ChangeMessage {
	return ChangeMessage{
		Seq:            c.Seq,
		Kind:           string(c.Kind),
		ConversationID: c.ConversationID,
		MessageID:      c.MessageID,
		At:             c.At,
	}
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := declareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// declareQueues declares queue and its ".dlq" dead-letter queue. Publisher
// and consumer both call it so either may start first.
func declareQueues(ch *amqp.Channel, queue string) error {
	mainQ := queue
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishChange(ctx context.Context, change chat.Change) error {
	body, err := json.Marshal(NewChangeMessage(change))
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    change.At,
			Type:         string(change.Kind),
		},
	)
}
