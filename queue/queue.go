package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/bounan/matcher/logutils"
)

const waitTimeSeconds = 20

// Waiter blocks on the notification queue until another Bounan stack
// announces a newly registered video.
type Waiter struct {
	client   *sqs.Client
	queueURL string
}

func NewWaiter(cfg aws.Config, queueURL string) *Waiter {
	return &Waiter{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

// WaitForNotification long-polls until a message arrives or ctx is
// cancelled. The message body carries no information, so it is deleted
// and discarded; the notification itself is the signal.
func (w *Waiter) WaitForNotification(ctx context.Context) error {
	l := logutils.LoggerFromContext(ctx)

	for {
		res, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     waitTimeSeconds,
		})
		if err != nil {
			return err
		}
		if len(res.Messages) == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		for _, msg := range res.Messages {
			_, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(w.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil {
				l.Warn("Failed to delete the notification message",
					zap.Error(err),
				)
			}
		}

		l.Debug("Received a notification",
			zap.Int("messages", len(res.Messages)),
		)
		return nil
	}
}
