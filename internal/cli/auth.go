package cli

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/auth"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage Google Drive credentials for a profile",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Google Drive",
	Long: `Run the OAuth2 flow and store the resulting credentials.

A local callback server receives the authorization code. On headless hosts,
or with --no-browser, the URL is printed and the code is pasted back instead.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authServiceAccountCmd = &cobra.Command{
	Use:   "service-account <key-file>",
	Short: "Authenticate with a service account key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthServiceAccount,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var (
	authScopes    []string
	authNoBrowser bool
	clientID      string
	clientSecret  string
)

func init() {
	authLoginCmd.Flags().StringSliceVar(&authScopes, "scopes", nil, "OAuth scopes to request (default: full Drive scope)")
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the consent URL and read the code from stdin")
	authLoginCmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID (or GDMIRROR_CLIENT_ID)")
	authLoginCmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (or GDMIRROR_CLIENT_SECRET)")
	authServiceAccountCmd.Flags().StringSliceVar(&authScopes, "scopes", nil, "OAuth scopes to request (default: full Drive scope)")

	authCmd.AddCommand(authLoginCmd, authServiceAccountCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func requestedScopes() []string {
	if len(authScopes) == 0 {
		return utils.ScopesTreeUpload
	}
	return authScopes
}

// withAuthManager runs fn with the active profile's auth manager and reports
// its result under command. Plain errors from fn are reported as code.
func withAuthManager(cmd *cobra.Command, command, code string,
	fn func(mgr *auth.Manager, profile string, out *OutputWriter) (interface{}, error)) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, err := newAuthManager()
	if err != nil {
		return out.WriteError(command, utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}

	data, err := fn(mgr, flags.Profile, out)
	if err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return out.WriteError(command, appErr.CLIError)
		}
		return out.WriteError(command, utils.NewCLIError(code, err.Error()).Build())
	}
	return out.WriteSuccess(command, data)
}

func credentialSummary(mgr *auth.Manager, profile string, creds *types.Credentials) map[string]interface{} {
	summary := map[string]interface{}{
		"profile":        profile,
		"type":           creds.Type,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": mgr.GetStorageBackend(),
	}
	if creds.ServiceAccountEmail != "" {
		summary["serviceAccount"] = creds.ServiceAccountEmail
	}
	return summary
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	return withAuthManager(cmd, "auth.login", utils.ErrCodeAuthRequired,
		func(mgr *auth.Manager, profile string, out *OutputWriter) (interface{}, error) {
			id, secret, ok := auth.ResolveOAuthClient(clientID, clientSecret)
			if !ok {
				return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
					"OAuth client ID required. Set --client-id/--client-secret or GDMIRROR_CLIENT_ID/GDMIRROR_CLIENT_SECRET").Build())
			}
			if warning := mgr.GetStorageWarning(); warning != "" {
				out.Log("%s", warning)
			}

			mgr.SetOAuthConfig(id, secret, requestedScopes())
			creds, err := mgr.Authenticate(cmd.Context(), profile, openBrowser, auth.OAuthAuthOptions{
				NoBrowser: authNoBrowser,
				In:        cmd.InOrStdin(),
				Out:       cmd.ErrOrStderr(),
			})
			if err != nil {
				return nil, err
			}
			out.Log("Authenticated profile %s", profile)
			return credentialSummary(mgr, profile, creds), nil
		})
}

func runAuthServiceAccount(cmd *cobra.Command, args []string) error {
	return withAuthManager(cmd, "auth.service-account", utils.ErrCodeAuthRequired,
		func(mgr *auth.Manager, profile string, out *OutputWriter) (interface{}, error) {
			creds, err := mgr.LoadServiceAccount(cmd.Context(), args[0], requestedScopes())
			if err != nil {
				return nil, err
			}
			if err := mgr.SaveCredentials(profile, creds); err != nil {
				return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
			}
			return credentialSummary(mgr, profile, creds), nil
		})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	return withAuthManager(cmd, "auth.logout", utils.ErrCodeUnknown,
		func(mgr *auth.Manager, profile string, out *OutputWriter) (interface{}, error) {
			err := mgr.DeleteCredentials(profile)
			if errors.Is(err, auth.ErrCredentialsNotFound) {
				return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
					fmt.Sprintf("No stored credentials for profile '%s'", profile)).Build())
			}
			if err != nil {
				return nil, fmt.Errorf("cannot remove credentials for profile '%s': %w", profile, err)
			}
			out.Log("Credentials removed for profile: %s", profile)
			return map[string]interface{}{"profile": profile, "status": "logged_out"}, nil
		})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	return withAuthManager(cmd, "auth.status", utils.ErrCodeUnknown,
		func(mgr *auth.Manager, profile string, out *OutputWriter) (interface{}, error) {
			profiles, err := mgr.ListProfiles()
			if err != nil {
				out.AddWarning(utils.ErrCodeUnknown, fmt.Sprintf("Cannot list profiles: %v", err), "warning")
			}

			creds, err := mgr.LoadCredentials(profile)
			if err != nil {
				return map[string]interface{}{
					"profile":        profile,
					"authenticated":  false,
					"profiles":       profiles,
					"storageBackend": mgr.GetStorageBackend(),
				}, nil
			}

			expired := time.Now().After(creds.ExpiryDate)
			status := credentialSummary(mgr, profile, creds)
			// An expired OAuth token is refreshed on the next call; a service
			// account token is not.
			status["authenticated"] = !(expired && creds.Type == types.AuthTypeServiceAccount)
			status["expired"] = expired
			status["needsRefresh"] = mgr.NeedsRefresh(creds)
			status["profiles"] = profiles
			return status, nil
		})
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}
