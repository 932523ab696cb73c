package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/jsonrs"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

const listPageSize = 100

// Response is TikTok's common envelope. The code field doubles as success sentinel
// (0) and error code, unlike HTTP status semantics.
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Audience is one platform-side custom audience.
type Audience struct {
	ID   string
	Name string
}

// APIClient talks to TikTok's custom audience endpoints.
type APIClient struct {
	logger     logger.Logger
	httpClient *http.Client
	baseURL    string
}

func NewAPIClient(conf *config.Config, log logger.Logger) *APIClient {
	return &APIClient{
		logger:     log.Child("uploader").Child("tiktok").Child("api"),
		httpClient: &http.Client{Timeout: conf.GetDuration("TikTok.httpTimeout", 60, time.Second)},
		baseURL:    conf.GetString("TikTok.apiURL", "https://business-api.tiktok.com"),
	}
}

// UploadFile uploads the raw audience file and returns the platform file_path handle
// needed by both the create and append flows. The MD5 file signature lets the
// platform detect corruption in transit.
func (c *APIClient) UploadFile(ctx context.Context, accessToken, advertiserID, calculateType, fileSignature, filePath string) (*Response, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening audience file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("creating multipart file field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copying audience file into request: %w", err)
	}
	for field, value := range map[string]string{
		"advertiser_id":  advertiserID,
		"file_signature": fileSignature,
		"calculate_type": calculateType,
	} {
		if err := writer.WriteField(field, value); err != nil {
			return nil, fmt.Errorf("writing multipart field %s: %w", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open_api/v1.3/dmp/custom_audience/file/upload/", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Access-Token", accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

// CreateAudience creates a new custom audience from a previously uploaded file.
func (c *APIClient) CreateAudience(ctx context.Context, accessToken, advertiserID, audienceName, calculateType, filePath string) (*Response, error) {
	return c.postJSON(ctx, accessToken, "/open_api/v1.3/dmp/custom_audience/create/", map[string]any{
		"advertiser_id":        advertiserID,
		"file_paths":           []string{filePath},
		"custom_audience_name": audienceName,
		"calculate_type":       calculateType,
	})
}

// AppendToAudience appends a previously uploaded file to an existing audience.
func (c *APIClient) AppendToAudience(ctx context.Context, accessToken, advertiserID, audienceID, filePath string) (*Response, error) {
	return c.postJSON(ctx, accessToken, "/open_api/v1.3/dmp/custom_audience/update/", map[string]any{
		"action":             "APPEND",
		"advertiser_id":      advertiserID,
		"file_paths":         []string{filePath},
		"custom_audience_id": audienceID,
	})
}

// FindAudienceByName pages through the advertiser's custom audiences (exact,
// case-sensitive name match) until a match is found or every page is exhausted.
// Returns nil when no audience matches.
func (c *APIClient) FindAudienceByName(ctx context.Context, accessToken, advertiserID, audienceName string) (*Audience, error) {
	page := 1
	for {
		query := url.Values{}
		query.Set("advertiser_id", advertiserID)
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(listPageSize))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/open_api/v1.3/dmp/custom_audience/list/?"+query.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating list request: %w", err)
		}
		req.Header.Set("Access-Token", accessToken)

		resp, err := c.do(req)
		if err != nil {
			return nil, err
		}
		if resp.Code != 0 {
			return nil, fmt.Errorf("listing custom audiences: code %d: %s", resp.Code, resp.Message)
		}

		var match *Audience
		gjson.GetBytes(resp.Data, "list").ForEach(func(_, item gjson.Result) bool {
			if item.Get("name").String() == audienceName {
				match = &Audience{
					ID:   item.Get("audience_id").String(),
					Name: item.Get("name").String(),
				}
				return false
			}
			return true
		})
		if match != nil {
			return match, nil
		}

		totalPage := int(gjson.GetBytes(resp.Data, "page_info.total_page").Int())
		if page >= totalPage {
			return nil, nil
		}
		page++
	}
}

func (c *APIClient) postJSON(ctx context.Context, accessToken, path string, payload map[string]any) (*Response, error) {
	body, err := jsonrs.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Access-Token", accessToken)
	return c.do(req)
}

func (c *APIClient) do(req *http.Request) (*Response, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", req.URL.Path, err)
	}
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}
	response := &Response{}
	if err := jsonrs.Unmarshal(body, response); err != nil {
		return nil, fmt.Errorf("parsing response from %s: %w", req.URL.Path, err)
	}
	return response, nil
}
