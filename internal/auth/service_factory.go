package auth

import (
	"context"
	"net/http"

	"github.com/dl-alexandre/gdmirror/internal/types"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v2"
	"google.golang.org/api/option"
)

// ServiceFactory builds Drive clients from stored credentials
type ServiceFactory struct {
	manager *Manager
	base    http.RoundTripper
}

// NewServiceFactory returns a factory. base, when non-nil, sits beneath the
// OAuth transport (the --debug request logger uses this).
func NewServiceFactory(manager *Manager, base http.RoundTripper) *ServiceFactory {
	return &ServiceFactory{manager: manager, base: base}
}

// CreateDriveService returns a Drive v2 service authorized with the
// credentials of profile
func (f *ServiceFactory) CreateDriveService(ctx context.Context, profile string, creds *types.Credentials, opts ...option.ClientOption) (*drive.Service, error) {
	if f.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: f.base})
	}
	client := f.manager.GetHTTPClient(ctx, profile, creds)
	return drive.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
}
