package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	drive "google.golang.org/api/drive/v2"
	"google.golang.org/api/googleapi"
)

// FindFolder returns the first non-trashed folder titled title. A non-empty
// parentID restricts the match to its direct children.
func (c *Client) FindFolder(ctx context.Context, title, parentID string) Result {
	return c.findChild(ctx, title, parentID, true)
}

// FindFile is FindFolder for non-folder items.
func (c *Client) FindFile(ctx context.Context, title, parentID string) Result {
	return c.findChild(ctx, title, parentID, false)
}

func (c *Client) findChild(ctx context.Context, title, parentID string, folder bool) Result {
	q := childQuery(title, parentID, folder)
	list, err := c.service.Files.List().Q(q).MaxResults(1).Context(ctx).Do()
	if err != nil {
		res := failure(err)
		c.logFailure(ctx, "list", res, logging.F("query", q))
		return res
	}
	if len(list.Items) == 0 {
		return notFound()
	}
	return success(toRemoteNode(list.Items[0]))
}

// CreateFolder creates a folder under parentID, or at the root when parentID is empty.
func (c *Client) CreateFolder(ctx context.Context, title, description, parentID string) Result {
	f := &drive.File{
		Title:       title,
		Description: description,
		MimeType:    utils.MimeTypeFolder,
		Parents:     parentRefs(parentID),
	}
	created, err := c.service.Files.Insert(f).Context(ctx).Do()
	if err != nil {
		res := failure(err)
		c.logFailure(ctx, "create folder", res, logging.F("title", title), logging.F("parentId", parentID))
		return res
	}
	return success(toRemoteNode(created))
}

// CreateFile uploads localPath as a new file. Files above the resumable
// threshold are sent in chunks; smaller files go in a single request.
func (c *Client) CreateFile(ctx context.Context, title, description, parentID, mimeType, localPath string) Result {
	file, size, err := openUpload(localPath)
	if err != nil {
		c.logger.WithContext(ctx).Error("Cannot read local file",
			logging.F("path", localPath),
			logging.F("error", err),
		)
		return parseFailure()
	}
	defer file.Close()

	f := &drive.File{
		Title:       title,
		Description: description,
		MimeType:    mimeType,
		Parents:     parentRefs(parentID),
	}
	created, err := c.service.Files.Insert(f).
		Media(file, c.mediaOptions(size, mimeType)...).
		Context(ctx).
		Do()
	if err != nil {
		res := failure(err)
		c.logFailure(ctx, "create file", res, logging.F("title", title), logging.F("path", localPath))
		return res
	}
	return success(toRemoteNode(created))
}

// GetFile fetches metadata for id.
func (c *Client) GetFile(ctx context.Context, id string) Result {
	f, err := c.service.Files.Get(id).Context(ctx).Do()
	if err != nil {
		res := failure(err)
		c.logFailure(ctx, "get", res, logging.F("fileId", id))
		return res
	}
	return success(toRemoteNode(f))
}

// RenameFile patches only the title of id.
func (c *Client) RenameFile(ctx context.Context, id, title string) Result {
	f, err := c.service.Files.Patch(id, &drive.File{Title: title}).Context(ctx).Do()
	if err != nil {
		res := failure(err)
		c.logFailure(ctx, "rename", res, logging.F("fileId", id), logging.F("title", title))
		return res
	}
	return success(toRemoteNode(f))
}

// UpdateFile replaces metadata and content of id. newRevision asks Drive to
// keep the previous content as a revision.
func (c *Client) UpdateFile(ctx context.Context, id, title, description, mimeType, localPath string, newRevision bool) Result {
	file, size, err := openUpload(localPath)
	if err != nil {
		c.logger.WithContext(ctx).Error("Cannot read local file",
			logging.F("path", localPath),
			logging.F("error", err),
		)
		return parseFailure()
	}
	defer file.Close()

	f := &drive.File{
		Title:       title,
		Description: description,
		MimeType:    mimeType,
	}
	updated, err := c.service.Files.Update(id, f).
		NewRevision(newRevision).
		Media(file, c.mediaOptions(size, mimeType)...).
		Context(ctx).
		Do()
	if err != nil {
		res := failure(err)
		c.logFailure(ctx, "update", res, logging.F("fileId", id), logging.F("path", localPath))
		return res
	}
	return success(toRemoteNode(updated))
}

// DeleteFile permanently removes id, skipping the trash.
func (c *Client) DeleteFile(ctx context.Context, id string) Result {
	if err := c.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		res := failure(err)
		c.logFailure(ctx, "delete", res, logging.F("fileId", id))
		return res
	}
	return Result{Status: http.StatusNoContent}
}

// Download streams the content of id into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, Result) {
	resp, err := c.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		res := failure(err)
		c.logFailure(ctx, "download", res, logging.F("fileId", id))
		return 0, res
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.logger.WithContext(ctx).Error("Download interrupted",
			logging.F("fileId", id),
			logging.F("bytes", n),
			logging.F("error", err),
		)
		return n, parseFailure()
	}
	return n, Result{Status: resp.StatusCode}
}

func (c *Client) mediaOptions(size int64, mimeType string) []googleapi.MediaOption {
	opts := []googleapi.MediaOption{googleapi.ChunkSize(0)}
	if size > c.resumableThreshold {
		opts[0] = googleapi.ChunkSize(c.resumableChunk())
	}
	if mimeType != "" {
		opts = append(opts, googleapi.ContentType(mimeType))
	}
	return opts
}

// resumableChunk is the configured chunk size capped at the resumable
// threshold, rounded down to the upload alignment. A file that fits in one
// chunk is sent as a single request, so a larger chunk would let files just
// over the threshold skip the resumable protocol.
func (c *Client) resumableChunk() int {
	chunk := c.chunkSize
	if c.resumableThreshold > 0 && int64(chunk) > c.resumableThreshold {
		chunk = int(c.resumableThreshold) / utils.UploadChunkAlignment * utils.UploadChunkAlignment
	}
	return max(chunk, utils.UploadChunkAlignment)
}

func (c *Client) logFailure(ctx context.Context, op string, res Result, fields ...logging.Field) {
	fields = append(fields,
		logging.F("op", op),
		logging.F("status", res.Status),
		logging.F("reason", res.Reason),
	)
	if res.RateLimited() {
		c.logger.WithContext(ctx).Debug("Drive call rate limited", fields...)
		return
	}
	c.logger.WithContext(ctx).Warn("Drive call failed", fields...)
}

func openUpload(path string) (*os.File, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	return file, info.Size(), nil
}
