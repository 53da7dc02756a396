package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"golang.org/x/oauth2/google"
)

// readServiceAccountKey loads a key file and checks the fields the JWT flow
// needs, so a wrong file fails with a clear message.
func readServiceAccountKey(path string) (data []byte, email string, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read service account key: %w", err)
	}

	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, "", fmt.Errorf("failed to parse service account key: %w", err)
	}
	switch {
	case key.Type != "service_account":
		return nil, "", fmt.Errorf("invalid service account key type: %q", key.Type)
	case key.ClientEmail == "":
		return nil, "", errors.New("missing client_email in service account key")
	case key.PrivateKey == "":
		return nil, "", errors.New("missing private_key in service account key")
	}
	return data, key.ClientEmail, nil
}

// LoadServiceAccount mints an access token from a service account key file.
// The key's path is kept with the credentials for later renewal.
func (m *Manager) LoadServiceAccount(ctx context.Context, keyFilePath string, scopes []string) (*types.Credentials, error) {
	if keyFilePath == "" {
		return nil, errors.New("service account key file required")
	}
	if len(scopes) == 0 {
		return nil, errors.New("at least one scope required")
	}
	abs, err := filepath.Abs(keyFilePath)
	if err != nil {
		return nil, err
	}

	data, email, err := readServiceAccountKey(abs)
	if err != nil {
		return nil, err
	}
	jwt, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	token, err := jwt.TokenSource(ctx).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &types.Credentials{
		AccessToken:           token.AccessToken,
		ExpiryDate:            token.Expiry,
		Scopes:                scopes,
		Type:                  types.AuthTypeServiceAccount,
		ServiceAccountEmail:   email,
		ServiceAccountKeyFile: abs,
	}, nil
}

// renewServiceAccount mints a new token from the key file creds came from
// and stores it under profile.
func (m *Manager) renewServiceAccount(ctx context.Context, profile string, creds *types.Credentials) (*types.Credentials, error) {
	if creds.ServiceAccountKeyFile == "" {
		return nil, errors.New("key file not recorded")
	}
	fresh, err := m.LoadServiceAccount(ctx, creds.ServiceAccountKeyFile, creds.Scopes)
	if err != nil {
		return nil, err
	}
	if err := m.SaveCredentials(profile, fresh); err != nil {
		m.logger.Warn("could not store renewed token", logging.F("profile", profile), logging.F("error", err))
	}
	m.logger.Debug("renewed service account token", logging.F("profile", profile))
	return fresh, nil
}
