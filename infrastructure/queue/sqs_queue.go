package queue

import (
	"context"
	"fmt"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue long-polls an SQS queue. A message left undeleted becomes visible
// again after the queue's visibility timeout.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

func (q *SQSQueue) Enqueue(ctx context.Context, msg repository.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(raw)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"jobId": {DataType: aws.String("String"), StringValue: aws.String(msg.JobID)},
		},
	})
	if err != nil {
		return fmt.Errorf("send job %s: %w", msg.JobID, err)
	}
	return nil
}

func (q *SQSQueue) Consume(ctx context.Context, handler repository.JobHandler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sqs receive: %w", err)
		}

		for _, m := range out.Messages {
			msg, err := decodeMessage([]byte(aws.ToString(m.Body)))
			if err != nil {
				logger.GetLogger().WithField("error", err).Error("Dropping undecodable job message")
				q.delete(ctx, m.ReceiptHandle)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				logger.GetLogger().WithField("jobId", msg.JobID).WithField("error", err).Warn("Job delivery failed, leaving message for redelivery")
				continue
			}
			q.delete(ctx, m.ReceiptHandle)
		}
	}
}

func (q *SQSQueue) delete(ctx context.Context, receipt *string) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: receipt,
	})
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Error deleting SQS message")
	}
}

func (q *SQSQueue) Close() error { return nil }
