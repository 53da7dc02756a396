package types

import "time"

// AuthType identifies how a credential was obtained
type AuthType string

const (
	AuthTypeOAuth          AuthType = "oauth"
	AuthTypeServiceAccount AuthType = "service_account"
)

// Credentials holds an access token and its metadata
type Credentials struct {
	AccessToken         string
	RefreshToken        string
	ExpiryDate          time.Time
	Scopes              []string
	Type                AuthType
	ServiceAccountEmail string
	// ServiceAccountKeyFile is where an expired service account token can be
	// minted again.
	ServiceAccountKeyFile string
}

// StoredCredentials is the serialized form kept in the credential store
type StoredCredentials struct {
	Profile               string   `json:"profile"`
	AccessToken           string   `json:"accessToken"`
	RefreshToken          string   `json:"refreshToken"`
	ExpiryDate            string   `json:"expiryDate"`
	Scopes                []string `json:"scopes"`
	Type                  AuthType `json:"type"`
	ServiceAccountEmail   string   `json:"serviceAccountEmail,omitempty"`
	ServiceAccountKeyFile string   `json:"serviceAccountKeyFile,omitempty"`
}
