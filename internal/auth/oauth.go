package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"golang.org/x/oauth2"
)

const callbackTimeout = 5 * time.Minute

// OAuthFlow is one authorization-code exchange with PKCE (S256).
type OAuthFlow struct {
	config      *oauth2.Config
	listener    net.Listener
	redirectURL string
	state       string
	verifier    string
	results     chan callbackResult
}

type callbackResult struct {
	code string
	err  error
}

// NewOAuthFlow prepares a flow. listener may be nil for the manual paste flow.
func NewOAuthFlow(config *oauth2.Config, listener net.Listener, redirectURL string) (*OAuthFlow, error) {
	if config == nil {
		return nil, errors.New("OAuth config not set")
	}
	cfg := *config
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL not set")
	}

	state := make([]byte, 24)
	if _, err := rand.Read(state); err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &OAuthFlow{
		config:      &cfg,
		listener:    listener,
		redirectURL: cfg.RedirectURL,
		state:       base64.RawURLEncoding.EncodeToString(state),
		verifier:    oauth2.GenerateVerifier(),
		results:     make(chan callbackResult, 1),
	}, nil
}

// GetAuthURL returns the consent URL, requesting offline access.
func (f *OAuthFlow) GetAuthURL() string {
	return f.config.AuthCodeURL(f.state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(f.verifier))
}

// StartCallbackServer serves /callback on the flow's listener until ctx ends.
func (f *OAuthFlow) StartCallbackServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", f.handleCallback)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(f.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.deliver("", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
}

// deliver keeps only the first callback outcome.
func (f *OAuthFlow) deliver(code string, err error) {
	select {
	case f.results <- callbackResult{code: code, err: err}:
	default:
	}
}

func (f *OAuthFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("state") != f.state:
		f.deliver("", errors.New("invalid state parameter"))
		http.Error(w, "Invalid state", http.StatusBadRequest)
	case q.Get("code") == "":
		f.deliver("", fmt.Errorf("authorization denied: %s", q.Get("error")))
		http.Error(w, "No code received", http.StatusBadRequest)
	default:
		f.deliver(q.Get("code"), nil)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>gdmirror is authorized</h1><p>You can close this window.</p></body></html>`)
	}
}

// WaitForCode blocks until the callback delivers a code, fails, or times out.
func (f *OAuthFlow) WaitForCode(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-f.results:
		return res.code, res.err
	case <-timer.C:
		return "", errors.New("authentication timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ExchangeCode trades the authorization code for tokens.
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code string) (*types.Credentials, error) {
	token, err := f.config.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return credentialsFromToken(token, &types.Credentials{Scopes: f.config.Scopes}), nil
}

func (f *OAuthFlow) Close() {
	if f.listener != nil {
		_ = f.listener.Close()
	}
}

// readAuthCode accepts either the bare code or the whole redirected URL
func readAuthCode(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if i := strings.Index(line, "code="); i >= 0 {
		line = line[i+len("code="):]
		if j := strings.IndexByte(line, '&'); j >= 0 {
			line = line[:j]
		}
	}
	if line == "" {
		return "", fmt.Errorf("no authorization code entered")
	}
	return line, nil
}

// OAuthAuthOptions controls the interactive login
type OAuthAuthOptions struct {
	NoBrowser bool
	In        io.Reader
	Out       io.Writer
}

func (o *OAuthAuthOptions) streams() (io.Reader, io.Writer) {
	in, out := o.In, o.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	return in, out
}

// Authenticate runs the loopback flow, falling back to manual code entry on
// headless hosts or when the browser cannot be opened, and stores the result.
func (m *Manager) Authenticate(ctx context.Context, profile string, openBrowser func(string) error, opts OAuthAuthOptions) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	in, out := opts.streams()

	var creds *types.Credentials
	var err error
	if opts.NoBrowser || isHeadlessEnv() {
		creds, err = m.authenticateManual(ctx, in, out)
	} else {
		creds, err = m.authenticateLoopback(ctx, openBrowser, in, out)
	}
	if err != nil {
		return nil, err
	}

	if err := m.SaveCredentials(profile, creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	m.logger.Info("stored credentials", logging.F("profile", profile), logging.F("backend", m.storage.Name()))
	return creds, nil
}

func (m *Manager) authenticateLoopback(ctx context.Context, openBrowser func(string) error, in io.Reader, out io.Writer) (*types.Credentials, error) {
	flow, err := newLoopbackFlow(m.oauthConfig)
	if err != nil {
		m.logger.Warn("loopback listener unavailable, using manual flow", logging.F("error", err))
		return m.authenticateManual(ctx, in, out)
	}
	defer flow.Close()

	authURL := flow.GetAuthURL()
	fmt.Fprintf(out, "Opening browser for authentication...\nIf the browser doesn't open, visit: %s\n", authURL)

	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	flow.StartCallbackServer(serverCtx)

	if openBrowser == nil {
		openBrowser = func(string) error { return errors.New("no browser launcher") }
	}
	if err := openBrowser(authURL); err != nil {
		fmt.Fprintf(out, "Failed to open browser: %v\nSwitching to manual authentication.\n", err)
		cancel()
		flow.Close()
		return m.authenticateManual(ctx, in, out)
	}

	code, err := flow.WaitForCode(ctx, callbackTimeout)
	if err != nil {
		return nil, err
	}
	return flow.ExchangeCode(ctx, code)
}

func (m *Manager) authenticateManual(ctx context.Context, in io.Reader, out io.Writer) (*types.Credentials, error) {
	flow, err := newManualFlow(m.oauthConfig)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Open this URL in a browser and approve access:\n%s\n", flow.GetAuthURL())
	fmt.Fprintf(out, "You will be redirected to a localhost URL that fails to load.\n")
	fmt.Fprint(out, "Paste that URL (or its code parameter) here: ")

	code, err := readAuthCode(bufio.NewReader(in))
	if err != nil {
		return nil, err
	}
	return flow.ExchangeCode(ctx, code)
}

func newLoopbackFlow(config *oauth2.Config) (*OAuthFlow, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	flow, err := NewOAuthFlow(config, listener, fmt.Sprintf("http://127.0.0.1:%d/callback", port))
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	return flow, nil
}

func newManualFlow(config *oauth2.Config) (*OAuthFlow, error) {
	return NewOAuthFlow(config, nil, fmt.Sprintf("http://127.0.0.1:%d/callback", pickManualPort()))
}

func pickManualPort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 8765
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func isHeadlessEnv() bool {
	for _, key := range []string{"GDMIRROR_NO_BROWSER", "CI", "GITHUB_ACTIONS", "SSH_CONNECTION", "SSH_TTY"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}
