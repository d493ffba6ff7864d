package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apache/pulsar-client-go/pulsar"
)

// pushEvent is the JSON published for each notification. A downstream
// worker owns the actual device delivery.
type pushEvent struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// PulsarPusher publishes notifications to a Pulsar topic.
type PulsarPusher struct {
	client   pulsar.Client
	producer pulsar.Producer
}

// NewPulsarPusher creates the Pulsar client and producer.
func NewPulsarPusher(url, topic string) (*PulsarPusher, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Pulsar client: %w", err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create Pulsar producer: %w", err)
	}

	slog.Info("Pulsar producer initialized", "url", url, "topic", topic)
	return &PulsarPusher{client: client, producer: producer}, nil
}

// Push publishes one notification event keyed by the device token.
func (p *PulsarPusher) Push(ctx context.Context, token string, msg Message) error {
	payload, err := json.Marshal(pushEvent{
		Token: token,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	})
	if err != nil {
		return fmt.Errorf("could not serialize push event: %w", err)
	}

	_, err = p.producer.Send(ctx, &pulsar.ProducerMessage{
		Key:     token,
		Payload: payload,
		Properties: map[string]string{
			"type": msg.Data["type"],
		},
	})
	if err != nil {
		return fmt.Errorf("could not send push event to Pulsar: %w", err)
	}
	return nil
}

// Close closes the producer and client.
func (p *PulsarPusher) Close() {
	p.producer.Close()
	p.client.Close()
}
