package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	body := `{"detail":{"bucket":{"name":"my-bucket"},"object":{"key":"output/snap/my%20audience/file1.csv.gz"}}}`
	notification, err := ParseNotification(body)
	require.NoError(t, err)
	require.Equal(t, "my-bucket", notification.Bucket)
	// object keys arrive URL-encoded
	require.Equal(t, "output/snap/my audience/file1.csv.gz", notification.Key)
}

func TestParseNotificationMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "nope"},
		{"missing bucket", `{"detail":{"object":{"key":"a/b"}}}`},
		{"missing key", `{"detail":{"bucket":{"name":"b"}}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseNotification(tc.body)
			require.Error(t, err)
		})
	}
}

func TestParseNotificationBadEncoding(t *testing.T) {
	body := `{"detail":{"bucket":{"name":"b"},"object":{"key":"bad%zzkey"}}}`
	_, err := ParseNotification(body)
	require.Error(t, err)
}

func TestMarshalBody(t *testing.T) {
	require.JSONEq(t, `{"rows":3}`, MarshalBody(map[string]int{"rows": 3}))
}
