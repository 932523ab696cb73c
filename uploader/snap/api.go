package snap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/jsonrs"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

const applicationJSON = "application/json"

// Segment is one audience segment of the advertiser's ad account.
type Segment struct {
	ID   string
	Name string
}

// APIClient talks to Snap's OAuth and Marketing API endpoints. It performs no
// internal retries; redelivery is the queue's job.
type APIClient struct {
	logger      logger.Logger
	httpClient  *http.Client
	accountsURL string
	adsURL      string
}

func NewAPIClient(conf *config.Config, log logger.Logger) *APIClient {
	return &APIClient{
		logger:      log.Child("uploader").Child("snap").Child("api"),
		httpClient:  &http.Client{Timeout: conf.GetDuration("Snap.httpTimeout", 30, time.Second)},
		accountsURL: conf.GetString("Snap.accountsURL", "https://accounts.snapchat.com"),
		adsURL:      conf.GetString("Snap.adsURL", "https://adsapi.snapchat.com"),
	}
}

// RefreshAccessToken exchanges the stored refresh token for a fresh access token and
// returns the raw response body, which the credential manager persists verbatim.
func (c *APIClient) RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) ([]byte, error) {
	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("client_secret", clientSecret)
	params.Set("refresh_token", refreshToken)
	params.Set("grant_type", "refresh_token")

	endpoint := c.accountsURL + "/login/oauth2/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, statusCode, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("refreshing access token: status %d: %s", statusCode, string(body))
	}
	return body, nil
}

// ListSegments returns every segment of the ad account.
func (c *APIClient) ListSegments(ctx context.Context, accessToken, adAccountID string) ([]Segment, error) {
	endpoint := fmt.Sprintf("%s/v1/adaccounts/%s/segments", c.adsURL, adAccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating segments request: %w", err)
	}
	req.Header.Set("Accept", applicationJSON)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, statusCode, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("listing segments: status %d: %s", statusCode, string(body))
	}

	segments := make([]Segment, 0)
	gjson.GetBytes(body, "segments").ForEach(func(_, item gjson.Result) bool {
		segment := item.Get("segment")
		segments = append(segments, Segment{
			ID:   segment.Get("id").String(),
			Name: segment.Get("name").String(),
		})
		return true
	})
	return segments, nil
}

// AddUsers posts one batch of hashed identifiers of a single schema to the segment.
func (c *APIClient) AddUsers(ctx context.Context, accessToken, segmentID, schema string, data [][]string) ([]byte, error) {
	payload, err := jsonrs.Marshal(map[string]any{
		"users": []map[string]any{{
			"schema": []string{schema},
			"data":   data,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling add-users payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/segments/%s/users", c.adsURL, segmentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating add-users request: %w", err)
	}
	req.Header.Set("Accept", applicationJSON)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", applicationJSON)

	body, statusCode, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("adding users to segment %s: status %d: %s", segmentID, statusCode, string(body))
	}
	return body, nil
}

func (c *APIClient) do(req *http.Request) ([]byte, int, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sending request to %s: %w", req.URL.Path, err)
	}
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}
	return body, res.StatusCode, nil
}
