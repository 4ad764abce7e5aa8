package queue

import (
	"context"
	"fmt"
	"time"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"

	"cloud.google.com/go/pubsub"
)

func NewPubSub(ctx context.Context, projectID string) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	return client, nil
}

// PubSubQueue publishes jobs to a topic and consumes them from a subscription.
// Nacked messages are redelivered by Pub/Sub.
type PubSubQueue struct {
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription string
}

// NewPubSubQueue creates the topic and subscription when they do not exist yet.
func NewPubSubQueue(ctx context.Context, client *pubsub.Client, topicID, subscriptionID string) (*PubSubQueue, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", topicID).Info("Topic doesn't exist - creating it")
		if topic, err = client.CreateTopic(ctx, topicID); err != nil {
			return nil, fmt.Errorf("create topic %s: %w", topicID, err)
		}
	}

	sub := client.Subscription(subscriptionID)
	exists, err = sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("subscription", subscriptionID).Info("Subscription doesn't exist - creating it")
		_, err = client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("create subscription %s: %w", subscriptionID, err)
		}
	}

	return &PubSubQueue{client: client, topic: topic, subscription: subscriptionID}, nil
}

func (q *PubSubQueue) Enqueue(ctx context.Context, msg repository.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	serverID, err := q.topic.Publish(ctx, &pubsub.Message{
		Data:       raw,
		Attributes: map[string]string{"jobId": msg.JobID},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish job %s: %w", msg.JobID, err)
	}
	logger.GetLogger().WithField("serverId", serverID).WithField("jobId", msg.JobID).Info("Message published")
	return nil
}

func (q *PubSubQueue) Consume(ctx context.Context, handler repository.JobHandler) error {
	sub := q.client.Subscription(q.subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	logger.GetLogger().WithField("subscription", q.subscription).Info("PubSub starting...")

	err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg, err := decodeMessage(m.Data)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Dropping undecodable job message")
			m.Ack()
			return
		}
		if err := handler(ctx, msg); err != nil {
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

func (q *PubSubQueue) Close() error {
	q.topic.Stop()
	return q.client.Close()
}
