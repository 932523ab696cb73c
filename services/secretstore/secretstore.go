package secretstore

import "context"

// Store is the secret store collaborator holding platform credentials. Snap keeps two
// records here (long-lived client credentials and the refreshable OAuth state), TikTok
// one. The refresh flow is the only writer.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
	PutSecret(ctx context.Context, name, value string) error
}
