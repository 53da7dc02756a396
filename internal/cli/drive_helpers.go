package cli

import (
	"context"
	"net/http"

	"github.com/dl-alexandre/gdmirror/internal/api"
	"github.com/dl-alexandre/gdmirror/internal/auth"
	"github.com/dl-alexandre/gdmirror/internal/cache"
	"github.com/dl-alexandre/gdmirror/internal/config"
	"github.com/dl-alexandre/gdmirror/internal/utils"
)

func getConfigDir() (string, error) {
	return config.GetConfigDir()
}

func newAuthManager() (*auth.Manager, error) {
	dir, err := getConfigDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManagerWithOptions(dir, auth.ManagerOptions{Logger: logger}), nil
}

// newDriveClient loads credentials for the active profile and builds a Drive
// v2 client. Authentication failures are returned as *utils.AppError.
func newDriveClient(ctx context.Context, command string) (*api.Client, error) {
	mgr, err := newAuthManager()
	if err != nil {
		return nil, err
	}
	if id, secret, ok := auth.ResolveOAuthClient("", ""); ok {
		mgr.SetOAuthConfig(id, secret, utils.ScopesTreeUpload)
	}

	creds, err := mgr.GetValidCredentials(ctx, globalFlags.Profile)
	if err != nil {
		return nil, err
	}
	if err := mgr.ValidateScopes(creds, auth.ScopesForCommand(command)); err != nil {
		return nil, err
	}

	var base http.RoundTripper
	if debugTransport != nil {
		base = debugTransport
	}
	svc, err := auth.NewServiceFactory(mgr, base).CreateDriveService(ctx, globalFlags.Profile, creds)
	if err != nil {
		return nil, err
	}

	return api.NewClient(svc, logger,
		api.WithChunkSize(appConfig.UploadChunkSize),
		api.WithResumableThreshold(appConfig.ResumableThreshold),
	), nil
}

func newRetrier() *api.Retrier {
	return api.NewRetrier(appConfig.MaxAttempts, logger)
}

// openCache opens the metadata cache named by the config, creating it if needed.
func openCache() (*cache.DB, string, error) {
	path, err := appConfig.ResolveCachePath()
	if err != nil {
		return nil, "", err
	}
	db, err := cache.Open(path)
	if err != nil {
		return nil, path, err
	}
	return db, path, nil
}
