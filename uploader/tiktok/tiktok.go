package tiktok

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/audience-uploader/services/objectstore"
	"github.com/rudderlabs/audience-uploader/services/secretstore"
	"github.com/rudderlabs/audience-uploader/uploader/common"
	"github.com/rudderlabs/audience-uploader/utils/misc"
)

// calculateTypes are the identifier schemas TikTok's custom audience endpoints accept.
var calculateTypes = []string{"PHONE_SHA256", "EMAIL_SHA256", "GAID_SHA256", "IDFA_SHA256"}

// ParseObjectKey recovers the upload metadata from the storage path convention
// <prefix>/<platform>/<audience_name>/<calculate_type>/<file_name>. The key is the
// only metadata channel, so a short path is fatal for the message.
func ParseObjectKey(key string) (fileName, calculateType, audienceName string, err error) {
	parts := strings.Split(path.Dir(key), "/")
	if len(parts) < 4 {
		return "", "", "", fmt.Errorf("%w: %q has fewer than four path segments", common.ErrMalformedObjectKey, key)
	}
	calculateType, err = NormalizeCalculateType(parts[3])
	if err != nil {
		return "", "", "", err
	}
	return path.Base(key), calculateType, parts[2], nil
}

// NormalizeCalculateType validates the calculate type case-insensitively against the
// supported set and returns its canonical uppercase form.
func NormalizeCalculateType(raw string) (string, error) {
	upper := strings.ToUpper(raw)
	for _, supported := range calculateTypes {
		if upper == supported {
			return upper, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not one of %v", common.ErrUnsupportedCalculateType, raw, calculateTypes)
}

// Handler reconciles a named custom audience against TikTok's existing state: the
// raw file is uploaded first, then the audience is either appended to (when an
// exact-name match exists) or created. The lookup-before-write step is what makes
// redelivery of the same notification safe.
type Handler struct {
	logger       logger.Logger
	statsFactory stats.Stats
	store        objectstore.ObjectStore
	secrets      secretstore.Store
	api          *APIClient
	secretName   string
}

func NewHandler(conf *config.Config, log logger.Logger, statsFactory stats.Stats, store objectstore.ObjectStore, secrets secretstore.Store, api *APIClient) *Handler {
	return &Handler{
		logger:       log.Child("uploader").Child("tiktok"),
		statsFactory: statsFactory,
		store:        store,
		secrets:      secrets,
		api:          api,
		secretName:   conf.GetString("TikTok.credentialsSecretName", "tiktok_uploader_credentials"),
	}
}

// Handle loops over all records defensively even though the queue is configured to
// deliver one per batch, and reports the last record's outcome.
func (h *Handler) Handle(ctx context.Context, bodies []string) common.Result {
	result := common.OKResult("no records processed")
	for _, body := range bodies {
		result = h.handleRecord(ctx, body)
		if result.StatusCode != http.StatusOK {
			h.logger.Errorf("record failed with status %d: %s", result.StatusCode, result.Body)
		} else {
			h.logger.Infof(result.Body)
		}
	}
	return result
}

func (h *Handler) handleRecord(ctx context.Context, body string) common.Result {
	notification, err := common.ParseNotification(body)
	if err != nil {
		return common.ErrorResult(http.StatusBadRequest, "parsing notification: %v", err)
	}
	h.logger.Infof("processing s3://%s/%s", notification.Bucket, notification.Key)

	fileName, calculateType, audienceName, err := ParseObjectKey(notification.Key)
	if err != nil {
		// Structurally malformed input will never succeed on redelivery.
		return common.ErrorResult(http.StatusBadRequest, "%v", err)
	}
	h.logger.Infof("file_name %s calculate_type %s custom_audience_name %s", fileName, calculateType, audienceName)

	accessToken, advertiserID, err := h.loadCredentials(ctx)
	if err != nil {
		return common.ErrorResult(http.StatusBadRequest, "loading credentials: %v", err)
	}

	filePath, fileSignature, err := h.download(ctx, notification, fileName)
	if err != nil {
		return common.ErrorResult(http.StatusBadRequest, "downloading audience file: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(filepath.Dir(filePath)); err != nil {
			h.logger.Errorf("cleaning up temporary file %s: %v", filePath, err)
		}
	}()

	response, err := h.api.UploadFile(ctx, accessToken, advertiserID, calculateType, fileSignature, filePath)
	if err != nil {
		return common.ErrorResult(http.StatusBadRequest, "uploading custom audience %s: %v", audienceName, err)
	}

	message := ""
	if response.Code == 0 {
		platformFilePath := gjson.GetBytes(response.Data, "file_path").String()

		audience, err := h.api.FindAudienceByName(ctx, accessToken, advertiserID, audienceName)
		if err != nil {
			return common.ErrorResult(http.StatusBadRequest, "resolving custom audience %s: %v", audienceName, err)
		}
		if audience != nil {
			response, err = h.api.AppendToAudience(ctx, accessToken, advertiserID, audience.ID, platformFilePath)
			message = fmt.Sprintf("custom audience %s successfully updated in TikTok Ads", audienceName)
		} else {
			response, err = h.api.CreateAudience(ctx, accessToken, advertiserID, audienceName, calculateType, platformFilePath)
			message = fmt.Sprintf("custom audience %s successfully created in TikTok Ads", audienceName)
		}
		if err != nil {
			return common.ErrorResult(http.StatusBadRequest, "uploading custom audience %s: %v", audienceName, err)
		}
	}

	if response.Code != 0 {
		return common.ErrorResult(http.StatusBadRequest,
			"error uploading custom audience %s to TikTok Ads: code %d: %s", audienceName, response.Code, response.Message)
	}

	h.statsFactory.NewTaggedStat("uploader_uploaded_files", stats.CountType, map[string]string{
		"module":   "uploader",
		"platform": "tiktok",
		"schema":   calculateType,
	}).Increment()
	return common.OKResult(message)
}

func (h *Handler) loadCredentials(ctx context.Context) (accessToken, advertiserID string, err error) {
	raw, err := h.secrets.GetSecret(ctx, h.secretName)
	if err != nil {
		return "", "", err
	}
	accessToken = gjson.Get(raw, "ACCESS_TOKEN").String()
	advertiserID = gjson.Get(raw, "ADVERTISER_ID").String()
	if accessToken == "" || advertiserID == "" {
		return "", "", fmt.Errorf("secret %s is missing ACCESS_TOKEN or ADVERTISER_ID", h.secretName)
	}
	return accessToken, advertiserID, nil
}

// download copies the object into a per-record temp directory and computes the MD5
// signature over the same bytes the platform receives.
func (h *Handler) download(ctx context.Context, notification common.Notification, fileName string) (string, string, error) {
	tmpDirPath, err := misc.CreateTMPDIR()
	if err != nil {
		return "", "", err
	}
	dir := filepath.Join(tmpDirPath, misc.UploaderTmpDirName, uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	object, err := h.store.Get(ctx, notification.Bucket, notification.Key)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", "", err
	}
	defer func() { _ = object.Close() }()

	filePath := filepath.Join(dir, fileName)
	file, err := os.Create(filePath)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", "", err
	}
	defer func() { _ = file.Close() }()

	sum := md5.New()
	if _, err := io.Copy(io.MultiWriter(file, sum), object); err != nil {
		_ = os.RemoveAll(dir)
		return "", "", fmt.Errorf("writing %s: %w", filePath, err)
	}
	return filePath, hex.EncodeToString(sum.Sum(nil)), nil
}
