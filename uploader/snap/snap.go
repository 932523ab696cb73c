package snap

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/uploader/common"
)

// schemaOptions are the identifier schemas Snap's segment-users endpoint accepts.
var schemaOptions = []string{"EMAIL_SHA256", "MOBILE_AD_ID_SHA256", "PHONE_SHA256"}

// Handler uploads one transformed partition per notification: it resolves the
// segment by name, splits the file's rows by schema and posts one add-users request
// per non-empty schema group.
type Handler struct {
	logger       logger.Logger
	statsFactory stats.Stats
	store        objectstore.ObjectStore
	credentials  *CredentialManager
	api          *APIClient
}

func NewHandler(log logger.Logger, statsFactory stats.Stats, store objectstore.ObjectStore, credentials *CredentialManager, api *APIClient) *Handler {
	return &Handler{
		logger:       log.Child("uploader").Child("snap"),
		statsFactory: statsFactory,
		store:        store,
		credentials:  credentials,
		api:          api,
	}
}

func (h *Handler) Handle(ctx context.Context, bodies []string) common.Result {
	// One refresh decision per invocation, shared by every record in the batch.
	creds, accessToken, err := h.credentials.Load(ctx)
	if err != nil {
		h.logger.Errorf("loading credentials: %v", err)
		return common.ErrorResult(http.StatusInternalServerError, "loading credentials: %v", err)
	}

	result := common.OKResult("no records processed")
	for _, body := range bodies {
		result = h.handleRecord(ctx, creds, accessToken, body)
		if result.StatusCode != http.StatusOK {
			h.logger.Errorf("record failed with status %d: %s", result.StatusCode, result.Body)
		}
	}
	return result
}

func (h *Handler) handleRecord(ctx context.Context, creds ClientCredentials, accessToken, body string) common.Result {
	notification, err := common.ParseNotification(body)
	if err != nil {
		return common.ErrorResult(http.StatusBadRequest, "parsing notification: %v", err)
	}
	h.logger.Infof("processing s3://%s/%s", notification.Bucket, notification.Key)

	fileName := path.Base(notification.Key)
	if !strings.HasSuffix(fileName, ".gz") {
		h.logger.Infof("%s: %v", fileName, common.ErrUnsupportedFile)
		return common.OKResult(common.ErrUnsupportedFile.Error())
	}

	segmentName, err := segmentNameFromKey(notification.Key)
	if err != nil {
		return common.ErrorResult(http.StatusBadRequest, "%v", err)
	}

	segments, err := h.api.ListSegments(ctx, accessToken, creds.AdAccountID)
	if err != nil {
		return common.ErrorResult(http.StatusInternalServerError, "%v", err)
	}
	segment, found := lo.Find(segments, func(s Segment) bool { return s.Name == segmentName })
	if !found {
		return common.ErrorResult(http.StatusBadRequest, "%v: %q", common.ErrSegmentNotFound, segmentName)
	}

	groups, err := h.readSchemaGroups(ctx, notification)
	if err != nil {
		return common.ErrorResult(http.StatusInternalServerError, "%v", err)
	}

	responses := map[string]json.RawMessage{}
	for _, schema := range schemaOptions {
		hashes := groups[schema]
		if len(hashes) == 0 {
			h.logger.Infof("%s is empty", schema)
			continue
		}
		data := lo.Map(hashes, func(hash string, _ int) []string {
			return strings.Split(hash, ", ")
		})
		response, err := h.api.AddUsers(ctx, accessToken, segment.ID, schema, data)
		if err != nil {
			return common.ErrorResult(http.StatusInternalServerError, "%v", err)
		}
		responses[schema] = response

		h.logger.Infof("%s has %d rows of data in %s", schema, len(hashes), notification.Key)
		h.logger.Infof("users added to segment %s: %s", segmentName,
			gjson.GetBytes(response, "users.0.user.number_uploaded_users").String())
		h.statsFactory.NewTaggedStat("uploader_uploaded_rows", stats.CountType, map[string]string{
			"module":   "uploader",
			"platform": "snap",
			"schema":   schema,
		}).Count(len(hashes))
	}

	if len(responses) == 0 {
		return common.OKResult("no schemas were found")
	}
	return common.OKResult(common.MarshalBody(map[string]any{
		"uploader": map[string]any{"response": responses},
	}))
}

// segmentNameFromKey recovers the audience label from the key's third path
// component: output/snap/<segment_name>/<file>.
func segmentNameFromKey(key string) (string, error) {
	parts := strings.Split(path.Dir(key), "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("%w: %q", common.ErrMalformedObjectKey, key)
	}
	return parts[2], nil
}

// readSchemaGroups gunzips the partition and groups its hash column by schema.
func (h *Handler) readSchemaGroups(ctx context.Context, notification common.Notification) (map[string][]string, error) {
	object, err := h.store.Get(ctx, notification.Bucket, notification.Key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = object.Close() }()

	gz, err := gzip.NewReader(object)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", notification.Key, err)
	}
	rows, err := csv.NewReader(gz).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", notification.Key, err)
	}
	if len(rows) == 0 {
		return map[string][]string{}, nil
	}

	header := rows[0]
	schemaIdx, hashIdx := -1, -1
	for i, name := range header {
		switch name {
		case "schema":
			schemaIdx = i
		case "hash":
			hashIdx = i
		}
	}
	if schemaIdx < 0 || hashIdx < 0 {
		return nil, fmt.Errorf("%s is missing schema/hash columns", notification.Key)
	}

	groups := map[string][]string{}
	for _, row := range rows[1:] {
		if len(row) <= schemaIdx || len(row) <= hashIdx {
			continue
		}
		groups[row[schemaIdx]] = append(groups[row[schemaIdx]], row[hashIdx])
	}
	return groups, nil
}
