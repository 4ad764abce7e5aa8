package queue

import (
	"context"
	"errors"
	"fmt"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// NewServiceBus authenticates with the default Azure credential chain.
// namespace is the fully qualified host, e.g. <name>.servicebus.windows.net.
func NewServiceBus(namespace string) (*azservicebus.Client, error) {
	if namespace == "" {
		return nil, errors.New("service bus namespace not configured")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := azservicebus.NewClient(namespace, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("service bus client: %w", err)
	}
	return client, nil
}

// ServiceBusQueue sends jobs to a Service Bus queue. Abandoned messages are
// redelivered until the queue's max delivery count dead-letters them.
type ServiceBusQueue struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
	queue  string
}

func NewServiceBusQueue(client *azservicebus.Client, queueName string) (*ServiceBusQueue, error) {
	sender, err := client.NewSender(queueName, nil)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while making new sender service bus.")
		return nil, err
	}
	return &ServiceBusQueue{client: client, sender: sender, queue: queueName}, nil
}

func (q *ServiceBusQueue) Enqueue(ctx context.Context, msg repository.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	contentType := "application/json"
	err = q.sender.SendMessage(ctx, &azservicebus.Message{
		Body:        raw,
		ContentType: &contentType,
	}, nil)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return fmt.Errorf("send job %s: %w", msg.JobID, err)
	}
	return nil
}

func (q *ServiceBusQueue) Consume(ctx context.Context, handler repository.JobHandler) error {
	receiver, err := q.client.NewReceiverForQueue(q.queue, nil)
	if err != nil {
		return fmt.Errorf("service bus receiver: %w", err)
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing receiver.")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, 1, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("service bus receive: %w", err)
		}
		for _, m := range messages {
			msg, err := decodeMessage(m.Body)
			if err != nil {
				logger.GetLogger().WithField("error", err).Error("Dropping undecodable job message")
				_ = receiver.CompleteMessage(ctx, m, nil)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				if err := receiver.AbandonMessage(context.Background(), m, nil); err != nil {
					logger.GetLogger().WithField("error", err).Warn("Error while abandoning message.")
				}
				continue
			}
			if err := receiver.CompleteMessage(ctx, m, nil); err != nil {
				logger.GetLogger().WithField("error", err).Warn("Error while completing message.")
			}
		}
	}
}

func (q *ServiceBusQueue) Close() error {
	ctx := context.Background()
	if err := q.sender.Close(ctx); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while closing sender.")
	}
	return q.client.Close(ctx)
}
