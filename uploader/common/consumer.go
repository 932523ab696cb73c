package common

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/cenkalti/backoff/v4"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
)

// Consumer long-polls the notification queue and hands each delivered batch to the
// platform handler. Messages are deleted only when the handler reports success;
// everything else is left for the queue's redrive policy, which is the only retry
// mechanism in the pipeline.
type Consumer struct {
	logger       logger.Logger
	statsFactory stats.Stats
	svc          sqsiface.SQSAPI
	handler      Handler
	platform     string

	queueURL    string
	maxMessages int64
	waitTime    int64
}

func NewConsumer(conf *config.Config, log logger.Logger, statsFactory stats.Stats, svc sqsiface.SQSAPI, handler Handler, platform string) *Consumer {
	return &Consumer{
		logger:       log.Child("uploader").Child("consumer"),
		statsFactory: statsFactory,
		svc:          svc,
		handler:      handler,
		platform:     platform,
		queueURL:     conf.GetString("Uploader.queueURL", ""),
		maxMessages:  conf.GetInt64("Uploader.maxMessagesPerReceive", 1),
		waitTime:     conf.GetInt64("Uploader.receiveWaitTimeSeconds", 20),
	}
}

// Run consumes until the context is cancelled. Receive errors back off
// exponentially; a successful receive resets the backoff.
func (c *Consumer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		out, err := c.svc.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: aws.Int64(c.maxMessages),
			WaitTimeSeconds:     aws.Int64(c.waitTime),
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			c.logger.Errorf("receiving messages: %v, retrying in %s", err, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		if len(out.Messages) == 0 {
			continue
		}
		c.process(ctx, out.Messages)
	}
}

func (c *Consumer) process(ctx context.Context, messages []*sqs.Message) {
	bodies := make([]string, 0, len(messages))
	for _, message := range messages {
		bodies = append(bodies, aws.StringValue(message.Body))
	}

	start := time.Now()
	result := c.handler.Handle(ctx, bodies)
	c.statsFactory.NewTaggedStat("uploader_handle_time", stats.TimerType, map[string]string{
		"module":   "uploader",
		"platform": c.platform,
	}).Since(start)

	if result.StatusCode != http.StatusOK {
		c.statsFactory.NewTaggedStat("uploader_failed_batches", stats.CountType, map[string]string{
			"module":   "uploader",
			"platform": c.platform,
		}).Increment()
		c.logger.Errorf("handler returned status %d: %s", result.StatusCode, result.Body)
		return
	}

	for _, message := range messages {
		_, err := c.svc.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: message.ReceiptHandle,
		})
		if err != nil {
			// The message will be redelivered; handlers are idempotent by design.
			c.logger.Errorf("deleting message: %v", err)
		}
	}
}
