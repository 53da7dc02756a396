package api

import (
	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/google/uuid"
	drive "google.golang.org/api/drive/v2"
)

// Client is the Drive gateway. Every method returns a Result instead of an
// error so callers can branch on status and reason without unwrapping.
type Client struct {
	service            *drive.Service
	logger             logging.Logger
	chunkSize          int
	resumableThreshold int64
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithChunkSize sets the resumable upload chunk size in bytes.
func WithChunkSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithResumableThreshold sets the size above which uploads are chunked.
func WithResumableThreshold(n int64) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.resumableThreshold = n
		}
	}
}

// NewClient creates a new Drive API client
func NewClient(service *drive.Service, logger logging.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	c := &Client{
		service:            service,
		logger:             logger,
		chunkSize:          utils.UploadChunkSize,
		resumableThreshold: utils.UploadSimpleMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(profile string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Profile:           profile,
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       requestType,
		TraceID:           uuid.New().String(),
	}
}

// Service returns the underlying Drive service
func (c *Client) Service() *drive.Service {
	return c.service
}

func toRemoteNode(f *drive.File) *types.RemoteNode {
	if f == nil {
		return nil
	}
	n := &types.RemoteNode{
		ID:            f.Id,
		Title:         f.Title,
		MimeType:      f.MimeType,
		Description:   f.Description,
		FileExtension: f.FileExtension,
		FileSize:      f.FileSize,
		MD5Checksum:   f.Md5Checksum,
		CreatedDate:   f.CreatedDate,
		ModifiedDate:  f.ModifiedDate,
		DownloadURL:   f.DownloadUrl,
		Etag:          f.Etag,
		Kind:          f.Kind,
	}
	for _, p := range f.Parents {
		if p != nil && p.Id != "" {
			n.ParentIDs = append(n.ParentIDs, p.Id)
		}
	}
	if f.Labels != nil {
		n.Labels = &types.NodeLabels{
			Hidden:  f.Labels.Hidden,
			Starred: f.Labels.Starred,
			Trashed: f.Labels.Trashed,
		}
	}
	if f.UserPermission != nil {
		n.UserPermission = &types.UserPermission{
			Etag: f.UserPermission.Etag,
			Kind: f.UserPermission.Kind,
			Role: f.UserPermission.Role,
			Type: f.UserPermission.Type,
		}
	}
	return n
}

func parentRefs(parentID string) []*drive.ParentReference {
	if parentID == "" {
		return nil
	}
	return []*drive.ParentReference{{Id: parentID}}
}
