package backend

import (
	"errors"
	"fmt"

	"budgetlens/internal/config"
	"budgetlens/internal/entries/google"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:             t,
		EntriesFile:      appConfig.EntriesFile,
		SQLiteDBPath:     appConfig.SQLiteDBPath,
		PostgresDSN:      appConfig.PostgresDSN,
		PostgresMaxConns: appConfig.PostgresMaxConns,
		SpreadsheetID:    appConfig.GoogleSpreadsheetID,
		SheetName:        appConfig.GoogleSheetName,
		Credentials: google.Credentials{
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			OAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
			OAuthClientFile:    appConfig.GoogleOAuthClientFile,
			OAuthTokenJSON:     appConfig.GoogleOAuthTokenJSON,
			OAuthTokenFile:     appConfig.GoogleOAuthTokenFile,
		},
	}, nil
}

// Validate checks the fields the selected backend needs.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLite:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case Postgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres DSN is required for postgres backend")
		}
	case Sheets:
		if c.SpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
	}
	return nil
}
