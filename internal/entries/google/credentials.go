package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var ErrMissingCredentials = errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or an OAuth client and token)")

// Credentials selects how the Sheets client authenticates. A service account
// wins over an OAuth client/token pair.
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

// CredentialsFromEnv reads the credential variables the cmd mains document.
func CredentialsFromEnv() Credentials {
	c := Credentials{
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		ServiceAccountFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
		OAuthClientJSON:    strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")),
		OAuthClientFile:    strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")),
		OAuthTokenJSON:     strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")),
		OAuthTokenFile:     strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")),
	}
	if c.ServiceAccountJSON == "" && c.ServiceAccountFile == "" {
		c.ServiceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return c
}

func (c Credentials) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	sa, err := readInlineOrFile(c.ServiceAccountJSON, c.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if len(sa) > 0 {
		return []option.ClientOption{
			option.WithCredentialsJSON(sa),
			option.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	}

	clientJSON, err := readInlineOrFile(c.OAuthClientJSON, c.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	tokenJSON, err := readInlineOrFile(c.OAuthTokenJSON, c.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(clientJSON) == 0 || len(tokenJSON) == 0 {
		return nil, ErrMissingCredentials
	}

	cfg, err := OAuthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	return []option.ClientOption{option.WithTokenSource(cfg.TokenSource(ctx, &tok))}, nil
}

// OAuthConfig parses an installed-app client definition for the Sheets scope.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// OAuthClient returns the OAuth client definition, inline or from file.
func (c Credentials) OAuthClient() ([]byte, error) {
	b, err := readInlineOrFile(c.OAuthClientJSON, c.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
	return b, nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case path != "":
		return os.ReadFile(path)
	default:
		return nil, nil
	}
}
