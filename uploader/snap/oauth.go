package snap

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/audience-uploader/services/secretstore"
)

// expiresAtLayout is the timestamp format persisted alongside the OAuth state.
const expiresAtLayout = "2006-01-02 15:04:05"

// Snap does not return expiry with the refresh grant; tokens are treated as valid
// for 30 minutes from issuance.
const tokenValidity = 1800 * time.Second

// ClientCredentials is the long-lived half of the Snap secret pair.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	AdAccountID  string
}

// CredentialManager owns the (has_refresh_credentials, token_expired) state machine.
// It checks expiry once per handler invocation; a refreshed token is persisted back
// to the secret store before it is used. Two concurrent refreshes can race, which is
// accepted: the platform tolerates a recently superseded token.
type CredentialManager struct {
	logger  logger.Logger
	secrets secretstore.Store
	api     *APIClient

	credSecretName    string
	refreshSecretName string
	now               func() time.Time
}

func NewCredentialManager(conf *config.Config, log logger.Logger, secrets secretstore.Store, api *APIClient) *CredentialManager {
	return &CredentialManager{
		logger:            log.Child("uploader").Child("snap").Child("credentials"),
		secrets:           secrets,
		api:               api,
		credSecretName:    conf.GetString("Snap.credentialsSecretName", "snap_uploader_credentials"),
		refreshSecretName: conf.GetString("Snap.refreshSecretName", "snap_uploader_credentials_oauth_refresh"),
		now:               time.Now,
	}
}

// IsTokenExpired reports whether the stored expiry timestamp is in the past. A
// missing or unparseable value counts as expired, failing safe toward a refresh.
func IsTokenExpired(expiresAt string, now time.Time) bool {
	parsed, err := time.ParseInLocation(expiresAtLayout, expiresAt, time.Local)
	if err != nil {
		return true
	}
	return parsed.Before(now)
}

// Load returns the client credentials and a usable access token, refreshing and
// persisting the OAuth state first when the stored token has expired.
func (m *CredentialManager) Load(ctx context.Context) (ClientCredentials, string, error) {
	refreshState, err := m.secrets.GetSecret(ctx, m.refreshSecretName)
	if err != nil {
		return ClientCredentials{}, "", fmt.Errorf("loading refresh credentials: %w", err)
	}
	clientState, err := m.secrets.GetSecret(ctx, m.credSecretName)
	if err != nil {
		return ClientCredentials{}, "", fmt.Errorf("loading client credentials: %w", err)
	}
	creds := ClientCredentials{
		ClientID:     gjson.Get(clientState, "client_id").String(),
		ClientSecret: gjson.Get(clientState, "client_secret").String(),
		AdAccountID:  gjson.Get(clientState, "ad_account_id").String(),
	}

	if !IsTokenExpired(gjson.Get(refreshState, "expires_at").String(), m.now()) {
		m.logger.Debugf("stored access token is still valid")
		return creds, gjson.Get(refreshState, "access_token").String(), nil
	}

	m.logger.Infof("access token expired, refreshing")
	body, err := m.api.RefreshAccessToken(ctx, creds.ClientID, creds.ClientSecret,
		gjson.Get(refreshState, "refresh_token").String())
	if err != nil {
		return ClientCredentials{}, "", err
	}
	stamped, err := sjson.SetBytes(body, "expires_at", m.now().Add(tokenValidity).Format(expiresAtLayout))
	if err != nil {
		return ClientCredentials{}, "", fmt.Errorf("stamping expiry on refreshed credentials: %w", err)
	}
	if err := m.secrets.PutSecret(ctx, m.refreshSecretName, string(stamped)); err != nil {
		return ClientCredentials{}, "", fmt.Errorf("persisting refreshed credentials: %w", err)
	}
	return creds, gjson.GetBytes(stamped, "access_token").String(), nil
}
