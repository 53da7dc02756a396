package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	serviceName        = "gdmirror"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager loads, refreshes and persists credentials per profile
type Manager struct {
	storage        StorageBackend
	oauthConfig    *oauth2.Config
	storageWarning string
	logger         logging.Logger
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // skip the system keyring
	ForcePlainFile     bool // unencrypted, development only
	Logger             logging.Logger
}

// NewManager creates a manager that prefers the system keyring
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// NewManagerWithOptions creates a manager with an explicit storage policy
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{logger: opts.Logger}
	if mgr.logger == nil {
		mgr.logger = logging.NewNoOpLogger()
	}
	mgr.storage, mgr.storageWarning = chooseStorage(configDir, opts)
	return mgr
}

// chooseStorage picks the keyring when it works, then an encrypted file, then
// a plain file. The returned notice is empty for the preferred backend.
func chooseStorage(configDir string, opts ManagerOptions) (StorageBackend, string) {
	if opts.ForcePlainFile {
		return NewPlainFileStorage(configDir), "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	}
	if !opts.ForceEncryptedFile && keyringAvailable() {
		return NewKeyringStorage(serviceName, configDir), ""
	}

	store, err := NewEncryptedFileStorage(configDir)
	if err != nil {
		return NewPlainFileStorage(configDir), fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
	}
	if opts.ForceEncryptedFile {
		return store, ""
	}
	return store, "INFO: System keyring not available. Using encrypted file storage."
}

// SetOAuthConfig sets the OAuth2 client used for login and refresh
func (m *Manager) SetOAuthConfig(clientID, clientSecret string, scopes []string) {
	m.oauthConfig = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

// LoadCredentials loads stored credentials for a profile
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	data, err := m.storage.Load(profile)
	if err != nil {
		return nil, err
	}
	return decodeCredentials(data)
}

// SaveCredentials saves credentials for a profile
func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	data, err := encodeCredentials(profile, creds)
	if err != nil {
		return err
	}
	return m.storage.Save(profile, data)
}

// DeleteCredentials removes credentials for a profile
func (m *Manager) DeleteCredentials(profile string) error {
	return m.storage.Delete(profile)
}

func encodeCredentials(profile string, creds *types.Credentials) ([]byte, error) {
	data, err := json.Marshal(types.StoredCredentials{
		Profile:               profile,
		AccessToken:           creds.AccessToken,
		RefreshToken:          creds.RefreshToken,
		ExpiryDate:            creds.ExpiryDate.Format(time.RFC3339),
		Scopes:                creds.Scopes,
		Type:                  creds.Type,
		ServiceAccountEmail:   creds.ServiceAccountEmail,
		ServiceAccountKeyFile: creds.ServiceAccountKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return data, nil
}

func decodeCredentials(data []byte) (*types.Credentials, error) {
	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339, stored.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry date %q: %w", stored.ExpiryDate, err)
	}
	return &types.Credentials{
		AccessToken:           stored.AccessToken,
		RefreshToken:          stored.RefreshToken,
		ExpiryDate:            expiry,
		Scopes:                stored.Scopes,
		Type:                  stored.Type,
		ServiceAccountEmail:   stored.ServiceAccountEmail,
		ServiceAccountKeyFile: stored.ServiceAccountKeyFile,
	}, nil
}

// NeedsRefresh reports whether the token expires within the refresh buffer
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return time.Now().Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}

// RefreshCredentials exchanges the refresh token for a new access token
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if creds.Type != types.AuthTypeOAuth {
		return nil, fmt.Errorf("refresh only supported for OAuth credentials")
	}
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}

	newToken, err := m.oauthConfig.TokenSource(ctx, tokenFromCredentials(creds)).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return credentialsFromToken(newToken, creds), nil
}

// GetValidCredentials returns usable credentials, refreshing if necessary.
// Every failure is an *utils.AppError so the CLI can map it to an exit code.
func (m *Manager) GetValidCredentials(ctx context.Context, profile string) (*types.Credentials, error) {
	creds, err := m.LoadCredentials(profile)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"No credentials found. Run 'gdmirror auth login' first.").
			WithContext("profile", profile).Build())
	}

	if creds.Type == types.AuthTypeServiceAccount {
		if !m.NeedsRefresh(creds) {
			return creds, nil
		}
		fresh, err := m.renewServiceAccount(ctx, profile, creds)
		if err == nil {
			return fresh, nil
		}
		if time.Now().After(creds.ExpiryDate) {
			m.logger.Warn("service account renewal failed", logging.F("profile", profile), logging.F("error", err))
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
				"Service account token expired. Run 'gdmirror auth service-account' again.").Build())
		}
		return creds, nil
	}

	if !m.NeedsRefresh(creds) {
		return creds, nil
	}

	m.logger.Debug("refreshing access token", logging.F("profile", profile))
	newCreds, err := m.RefreshCredentials(ctx, creds)
	if err != nil {
		m.logger.Warn("token refresh failed", logging.F("profile", profile), logging.F("error", err))
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Token refresh failed. Run 'gdmirror auth login' to re-authenticate.").Build())
	}
	if err := m.SaveCredentials(profile, newCreds); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	return newCreds, nil
}

// GetHTTPClient returns an authenticated HTTP client. A client stored in ctx
// under oauth2.HTTPClient is used as the base transport. OAuth tokens
// refreshed by the client are saved back under profile.
func (m *Manager) GetHTTPClient(ctx context.Context, profile string, creds *types.Credentials) *http.Client {
	token := tokenFromCredentials(creds)
	if m.oauthConfig == nil || creds.Type != types.AuthTypeOAuth {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	}
	src := newSavingTokenSource(m, profile, creds, m.oauthConfig.TokenSource(ctx, token))
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, src))
}

// ValidateScopes checks that creds carry every required scope. The full
// drive scope covers all others.
func (m *Manager) ValidateScopes(creds *types.Credentials, required []string) error {
	if slices.Contains(creds.Scopes, utils.ScopeFull) {
		return nil
	}
	for _, req := range required {
		if slices.Contains(creds.Scopes, req) {
			continue
		}
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeScopeInsufficient,
			fmt.Sprintf("Missing required scope: %s. Re-authenticate with 'gdmirror auth login'.", req)).
			WithContext("scope", req).Build())
	}
	return nil
}

// ScopesForCommand returns the scopes a CLI command needs
func ScopesForCommand(command string) []string {
	switch command {
	case "show", "download":
		return []string{utils.ScopeReadonly}
	case "insert", "update", "rename", "easy-rename":
		return []string{utils.ScopeFile}
	default:
		// upload-tree finds folders it did not create; delete works on any file.
		return []string{utils.ScopeFull}
	}
}

func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
