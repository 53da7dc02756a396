package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/types"
	"golang.org/x/oauth2"
)

type fixedTokens struct {
	tokens []*oauth2.Token
	err    error
	i      int
}

func (f *fixedTokens) Token() (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	tok := f.tokens[f.i]
	if f.i < len(f.tokens)-1 {
		f.i++
	}
	return tok, nil
}

func TestSavingTokenSource(t *testing.T) {
	mgr := newTestManager(t)
	prev := &types.Credentials{
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiryDate:   time.Now().Add(-time.Minute),
		Scopes:       []string{"scope-a"},
		Type:         types.AuthTypeOAuth,
	}
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	base := &fixedTokens{tokens: []*oauth2.Token{
		{AccessToken: "old"},
		{AccessToken: "new", Expiry: expiry},
	}}
	src := newSavingTokenSource(mgr, "default", prev, base)

	if _, err := src.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if _, err := mgr.LoadCredentials("default"); err == nil {
		t.Fatal("unchanged token was saved")
	}

	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "new" {
		t.Fatalf("AccessToken = %q", tok.AccessToken)
	}

	saved, err := mgr.LoadCredentials("default")
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if saved.AccessToken != "new" || saved.RefreshToken != "refresh-1" {
		t.Errorf("saved = %+v, want new access token and the old refresh token", saved)
	}
	if !saved.ExpiryDate.Equal(expiry) {
		t.Errorf("ExpiryDate = %v, want %v", saved.ExpiryDate, expiry)
	}
	if len(saved.Scopes) != 1 || saved.Scopes[0] != "scope-a" {
		t.Errorf("Scopes = %v", saved.Scopes)
	}
}

func TestSavingTokenSource_Error(t *testing.T) {
	mgr := newTestManager(t)
	boom := errors.New("invalid_grant")
	src := newSavingTokenSource(mgr, "default", &types.Credentials{AccessToken: "old"}, &fixedTokens{err: boom})

	if _, err := src.Token(); !errors.Is(err, boom) {
		t.Errorf("Token() error = %v, want %v", err, boom)
	}
}

func TestGetHTTPClient_PersistsRefresh(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	mgr := newTestManager(t)
	mgr.SetOAuthConfig("id", "secret", []string{"scope"})
	mgr.oauthConfig.Endpoint = oauth2.Endpoint{TokenURL: tokenSrv.URL + "/token"}

	creds := &types.Credentials{
		AccessToken:  "stale",
		RefreshToken: "r",
		ExpiryDate:   time.Now().Add(-time.Hour),
		Type:         types.AuthTypeOAuth,
	}
	client := mgr.GetHTTPClient(context.Background(), "work", creds)

	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer fresh" {
		t.Errorf("Authorization = %q, want Bearer fresh", gotAuth)
	}
	saved, err := mgr.LoadCredentials("work")
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if saved.AccessToken != "fresh" || saved.RefreshToken != "r" {
		t.Errorf("saved = %+v", saved)
	}
}
