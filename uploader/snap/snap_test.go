package snap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/pii"
	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/services/secretstore"
	"github.com/rudderlabs/audience-uploader/uploader/common"
)

type fakeSnapAPI struct {
	*httptest.Server

	segmentsCalls int
	addUsersCalls []string // request bodies, in order
	segmentsBody  string
}

func newFakeSnapAPI(t *testing.T) *fakeSnapAPI {
	t.Helper()
	fake := &fakeSnapAPI{
		segmentsBody: `{"segments":[
			{"segment":{"id":"seg-1","name":"myaudience"}},
			{"segment":{"id":"seg-2","name":"other"}}
		]}`,
	}
	fake.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer stored-token", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/adaccounts/aa-1/segments":
			fake.segmentsCalls++
			_, _ = w.Write([]byte(fake.segmentsBody))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/segments/seg-1/users":
			buf := new(bytes.Buffer)
			_, _ = buf.ReadFrom(r.Body)
			fake.addUsersCalls = append(fake.addUsersCalls, buf.String())
			_, _ = w.Write([]byte(`{"users":[{"user":{"number_uploaded_users":3}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fake.Close)
	return fake
}

func newTestHandler(t *testing.T, baseURL string, store objectstore.ObjectStore) *Handler {
	t.Helper()
	conf := config.New()
	conf.Set("Snap.accountsURL", baseURL)
	conf.Set("Snap.adsURL", baseURL)

	secrets := secretstore.NewMemoryStore(map[string]string{
		"snap_uploader_credentials":               `{"client_id":"cid","client_secret":"cs","ad_account_id":"aa-1"}`,
		"snap_uploader_credentials_oauth_refresh": `{"access_token":"stored-token","refresh_token":"rt","expires_at":"2024-06-01 23:59:59"}`,
	})
	api := NewAPIClient(conf, logger.NOP)
	credentials := NewCredentialManager(conf, logger.NOP, secrets, api)
	credentials.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local) }
	return NewHandler(logger.NOP, stats.NOP, store, credentials, api)
}

func putPartition(t *testing.T, store objectstore.ObjectStore, key string, records [][]string) {
	t.Helper()
	buf := new(bytes.Buffer)
	gz := gzip.NewWriter(buf)
	writer := csv.NewWriter(gz)
	require.NoError(t, writer.WriteAll(append([][]string{{"schema", "hash", "segment_name"}}, records...)))
	require.NoError(t, gz.Close())
	require.NoError(t, store.Put(context.Background(), "output", key, buf.Bytes()))
}

func notificationBody(key string) string {
	return fmt.Sprintf(`{"detail":{"bucket":{"name":"output"},"object":{"key":"%s"}}}`, key)
}

func TestHandleUploadsOnePostPerSchema(t *testing.T) {
	fake := newFakeSnapAPI(t)
	store := objectstore.NewMemoryStore()

	key := "output/snap/myaudience/mydata1.csv.gz"
	putPartition(t, store, key, [][]string{
		{"EMAIL_SHA256", pii.HashValue("a@example.com"), "myaudience"},
		{"EMAIL_SHA256", pii.HashValue("b@example.com"), "myaudience"},
		{"EMAIL_SHA256", pii.HashValue("c@example.com"), "myaudience"},
	})

	handler := newTestHandler(t, fake.URL, store)
	result := handler.Handle(context.Background(), []string{notificationBody(key)})
	require.Equal(t, http.StatusOK, result.StatusCode)

	// a single-schema file triggers exactly one add-users call
	require.Equal(t, 1, fake.segmentsCalls)
	require.Len(t, fake.addUsersCalls, 1)

	payload := fake.addUsersCalls[0]
	require.Equal(t, "EMAIL_SHA256", gjson.Get(payload, "users.0.schema.0").String())
	require.Equal(t, int64(3), gjson.Get(payload, "users.0.data.#").Int())
	require.Equal(t, pii.HashValue("a@example.com"), gjson.Get(payload, "users.0.data.0.0").String())

	require.Equal(t, "3", gjson.Get(result.Body, "uploader.response.EMAIL_SHA256.users.0.user.number_uploaded_users").String())
}

func TestHandleSkipsNonGzipFiles(t *testing.T) {
	fake := newFakeSnapAPI(t)
	handler := newTestHandler(t, fake.URL, objectstore.NewMemoryStore())

	// plain csv objects are consumed without an upload so they are not redelivered
	result := handler.Handle(context.Background(), []string{notificationBody("output/snap/myaudience/mydata1.csv")})
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, common.ErrUnsupportedFile.Error(), result.Body)
	require.Zero(t, fake.segmentsCalls)
}

func TestHandleMalformedKey(t *testing.T) {
	fake := newFakeSnapAPI(t)
	handler := newTestHandler(t, fake.URL, objectstore.NewMemoryStore())

	result := handler.Handle(context.Background(), []string{notificationBody("shallow/key.csv.gz")})
	require.Equal(t, http.StatusBadRequest, result.StatusCode)
}

func TestHandleSegmentNotFound(t *testing.T) {
	fake := newFakeSnapAPI(t)
	store := objectstore.NewMemoryStore()

	key := "output/snap/unknownaudience/mydata1.csv.gz"
	putPartition(t, store, key, [][]string{
		{"EMAIL_SHA256", pii.HashValue("a@example.com"), "unknownaudience"},
	})

	handler := newTestHandler(t, fake.URL, store)
	result := handler.Handle(context.Background(), []string{notificationBody(key)})
	require.Equal(t, http.StatusBadRequest, result.StatusCode)
	require.Contains(t, result.Body, common.ErrSegmentNotFound.Error())
	require.Empty(t, fake.addUsersCalls)
}

func TestHandleBadNotification(t *testing.T) {
	fake := newFakeSnapAPI(t)
	handler := newTestHandler(t, fake.URL, objectstore.NewMemoryStore())

	result := handler.Handle(context.Background(), []string{"not a notification"})
	require.Equal(t, http.StatusBadRequest, result.StatusCode)
}
