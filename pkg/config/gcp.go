package config

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
)

// CredentialBytes returns the service account key, preferring the inline
// JSON over the file path. Nil means application default credentials.
func (g GCPConfig) CredentialBytes() ([]byte, error) {
	if inline := strings.TrimSpace(g.CredentialsJSON); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(g.ApplicationCredentials)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	return data, nil
}

// ClientOptions builds the option set shared by the GCP SDK clients.
func (g GCPConfig) ClientOptions() ([]option.ClientOption, error) {
	creds, err := g.CredentialBytes()
	if err != nil || creds == nil {
		return nil, err
	}
	return []option.ClientOption{option.WithCredentialsJSON(creds)}, nil
}
