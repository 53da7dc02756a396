package auth

import (
	"sync"

	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"golang.org/x/oauth2"
)

func tokenFromCredentials(creds *types.Credentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiryDate,
	}
}

// credentialsFromToken builds OAuth credentials from tok, keeping prev's
// refresh token when the server did not issue a new one.
func credentialsFromToken(tok *oauth2.Token, prev *types.Credentials) *types.Credentials {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = prev.RefreshToken
	}
	return &types.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiryDate:   tok.Expiry,
		Scopes:       prev.Scopes,
		Type:         types.AuthTypeOAuth,
	}
}

// savingTokenSource stores every new access token under profile, so a
// token refreshed in the middle of a long upload survives the process.
type savingTokenSource struct {
	mgr     *Manager
	profile string
	base    oauth2.TokenSource

	mu   sync.Mutex
	last *types.Credentials
}

func newSavingTokenSource(mgr *Manager, profile string, creds *types.Credentials, base oauth2.TokenSource) *savingTokenSource {
	return &savingTokenSource{mgr: mgr, profile: profile, base: base, last: creds}
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last.AccessToken {
		return tok, nil
	}

	next := credentialsFromToken(tok, s.last)
	if err := s.mgr.SaveCredentials(s.profile, next); err != nil {
		// The token is still good for this run.
		s.mgr.logger.Warn("could not store refreshed token", logging.F("profile", s.profile), logging.F("error", err))
	} else {
		s.mgr.logger.Debug("stored refreshed token", logging.F("profile", s.profile))
	}
	s.last = next
	return tok, nil
}
