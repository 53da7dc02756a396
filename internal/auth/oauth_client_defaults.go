package auth

import "os"

// Bundled client credentials can be injected at build time with
// -ldflags "-X github.com/dl-alexandre/gdmirror/internal/auth.BundledOAuthClientID=..."
var (
	BundledOAuthClientID     string
	BundledOAuthClientSecret string
)

// ResolveOAuthClient picks the OAuth client: explicit flags first, then
// GDMIRROR_CLIENT_ID/GDMIRROR_CLIENT_SECRET, then the bundled client.
func ResolveOAuthClient(flagID, flagSecret string) (id, secret string, ok bool) {
	if flagID != "" {
		return flagID, flagSecret, true
	}
	if envID := os.Getenv("GDMIRROR_CLIENT_ID"); envID != "" {
		return envID, os.Getenv("GDMIRROR_CLIENT_SECRET"), true
	}
	if BundledOAuthClientID != "" {
		return BundledOAuthClientID, BundledOAuthClientSecret, true
	}
	return "", "", false
}
