package common

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/jsonrs"
)

// Notification is one object-created event delivered through the queue. The body is
// the event-bus envelope; only the bucket name and (URL-encoded) object key matter.
type Notification struct {
	Bucket string
	Key    string
}

// ParseNotification extracts bucket and key from a queued notification body.
func ParseNotification(body string) (Notification, error) {
	bucket := gjson.Get(body, "detail.bucket.name").String()
	rawKey := gjson.Get(body, "detail.object.key").String()
	if bucket == "" || rawKey == "" {
		return Notification{}, fmt.Errorf("notification body is missing detail.bucket.name or detail.object.key")
	}
	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return Notification{}, fmt.Errorf("decoding object key %q: %w", rawKey, err)
	}
	return Notification{Bucket: bucket, Key: key}, nil
}

// Result is the structured outcome of one handler invocation. Non-200 status codes
// route the message to the queue's redrive policy; the handler itself never retries.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func OKResult(body string) Result {
	return Result{StatusCode: http.StatusOK, Body: body}
}

func ErrorResult(statusCode int, format string, args ...any) Result {
	return Result{StatusCode: statusCode, Body: fmt.Sprintf(format, args...)}
}

// MarshalBody JSON-encodes a payload into the result body, falling back to %v
// rendering when the payload cannot be encoded.
func MarshalBody(payload any) string {
	body, err := jsonrs.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(body)
}

// Handler processes one delivered batch of notification bodies and reports a single
// aggregate result. Implementations must be safe to re-invoke with the same input;
// delivery is at-least-once.
type Handler interface {
	Handle(ctx context.Context, bodies []string) Result
}
