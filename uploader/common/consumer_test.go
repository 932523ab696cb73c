package common

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
)

// fakeSQS serves a fixed sequence of receive outputs, then cancels the consumer's
// context to stop the run loop.
type fakeSQS struct {
	sqsiface.SQSAPI

	mu      sync.Mutex
	outputs []*sqs.ReceiveMessageOutput
	deleted []string
	cancel  context.CancelFunc
}

func (f *fakeSQS) ReceiveMessageWithContext(_ aws.Context, _ *sqs.ReceiveMessageInput, _ ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outputs) == 0 {
		f.cancel()
		return nil, errors.New("queue drained")
	}
	out := f.outputs[0]
	f.outputs = f.outputs[1:]
	return out, nil
}

func (f *fakeSQS) DeleteMessageWithContext(_ aws.Context, input *sqs.DeleteMessageInput, _ ...request.Option) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.StringValue(input.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type staticHandler struct {
	result  Result
	batches [][]string
}

func (h *staticHandler) Handle(_ context.Context, bodies []string) Result {
	h.batches = append(h.batches, bodies)
	return h.result
}

func runConsumer(t *testing.T, svc *fakeSQS, handler Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.cancel = cancel

	conf := config.New()
	conf.Set("Uploader.queueURL", "https://sqs.test/queue")
	consumer := NewConsumer(conf, logger.NOP, stats.NOP, svc, handler, "snap")
	require.ErrorIs(t, consumer.Run(ctx), context.Canceled)
}

func TestConsumerDeletesOnSuccess(t *testing.T) {
	svc := &fakeSQS{outputs: []*sqs.ReceiveMessageOutput{{
		Messages: []*sqs.Message{{
			Body:          aws.String(`{"detail":{}}`),
			ReceiptHandle: aws.String("receipt-1"),
		}},
	}}}
	handler := &staticHandler{result: OKResult("done")}

	runConsumer(t, svc, handler)

	require.Equal(t, [][]string{{`{"detail":{}}`}}, handler.batches)
	require.Equal(t, []string{"receipt-1"}, svc.deleted)
}

func TestConsumerKeepsMessageOnFailure(t *testing.T) {
	svc := &fakeSQS{outputs: []*sqs.ReceiveMessageOutput{{
		Messages: []*sqs.Message{{
			Body:          aws.String("bad"),
			ReceiptHandle: aws.String("receipt-1"),
		}},
	}}}
	handler := &staticHandler{result: ErrorResult(http.StatusBadRequest, "nope")}

	runConsumer(t, svc, handler)

	require.Len(t, handler.batches, 1)
	// redrive policy owns the retry, the consumer must not delete
	require.Empty(t, svc.deleted)
}

func TestConsumerSkipsEmptyReceives(t *testing.T) {
	svc := &fakeSQS{outputs: []*sqs.ReceiveMessageOutput{{}, {}}}
	handler := &staticHandler{result: OKResult("done")}

	runConsumer(t, svc, handler)

	require.Empty(t, handler.batches)
	require.Empty(t, svc.deleted)
}
