package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Consumer wraps a sarama ConsumerGroup and exposes claimed messages on a
// channel. Each message must be acknowledged after it was handled.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	messages chan Message
	closed   chan struct{}
}

// Message is one record together with its acknowledgement.
type Message struct {
	Key   []byte
	Value []byte
	ack   func()
}

// Ack marks the message as consumed for the group.
func (m Message) Ack() {
	if m.ack != nil {
		m.ack()
	}
}

func NewConsumer(brokers []string, groupID, topic string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		group:    group,
		topic:    topic,
		messages: make(chan Message),
		closed:   make(chan struct{}),
	}, nil
}

// StartListening consumes the topic in the background, rejoining the
// group after errors until ctx is cancelled.
func (c *Consumer) StartListening(ctx context.Context) {
	handler := &consumerGroupHandler{
		messages: c.messages,
		closed:   c.closed,
	}

	go func() {
		defer close(c.messages)

		retryDelay := time.Second * 5
		for {
			select {
			case <-ctx.Done():
				slog.Info("kafka: consumer context cancelled, stopping", "topic", c.topic)
				return
			default:
				slog.Debug("kafka: starting consumption cycle", "topic", c.topic)
				err := c.group.Consume(ctx, []string{c.topic}, handler)
				if err != nil {
					slog.Error("kafka: consume failed", "topic", c.topic, "error", err, "retry_in", retryDelay)
					select {
					case <-ctx.Done():
						return
					case <-time.After(retryDelay):
					}
					continue
				}

				if ctx.Err() != nil {
					return
				}
			}
		}
	}()
}

func (c *Consumer) Close() error {
	close(c.closed)
	return c.group.Close()
}

func (c *Consumer) Messages() <-chan Message {
	return c.messages
}

type consumerGroupHandler struct {
	messages chan<- Message
	closed   <-chan struct{}
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- Message{
				Key:   msg.Key,
				Value: msg.Value,
				ack:   func() { sess.MarkMessage(msg, "") },
			}:
			case <-sess.Context().Done():
				return nil
			case <-h.closed:
				return nil
			}
		case <-sess.Context().Done():
			return nil
		case <-h.closed:
			return nil
		}
	}
}
