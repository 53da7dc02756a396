// Package sync uploads a local directory tree into a Drive folder hierarchy.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/api"
	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/sync/exclude"
	"github.com/dl-alexandre/gdmirror/internal/sync/mimetype"
	"github.com/dl-alexandre/gdmirror/internal/sync/naming"
	"github.com/dl-alexandre/gdmirror/internal/sync/pathmap"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/google/uuid"
)

var (
	// ErrMissingAncestor means a directory was reached before either it or
	// its parent had a remote folder. The walk order rules this out, so it
	// signals a bug and aborts the run.
	ErrMissingAncestor = errors.New("no remote folder for directory or its parent")

	// ErrRootFolder means the destination folder could not be found or created.
	ErrRootFolder = errors.New("cannot obtain destination root folder")

	// ErrNotDirectory means the upload root is not a directory.
	ErrNotDirectory = errors.New("upload root is not a directory")
)

// Gateway is the part of the Drive client the uploader calls.
type Gateway interface {
	FindFolder(ctx context.Context, title, parentID string) api.Result
	CreateFolder(ctx context.Context, title, description, parentID string) api.Result
	CreateFile(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result
}

// Uploader walks one local tree per UploadTree call. It holds no state
// between calls apart from the mimetype resolver's missing-extension log.
type Uploader struct {
	gateway  Gateway
	retrier  *api.Retrier
	resolver *mimetype.Resolver
	exclude  *exclude.Matcher
	logger   logging.Logger
}

// Option customises an Uploader.
type Option func(*Uploader)

// WithExclude skips paths matched by m in addition to hidden entries.
func WithExclude(m *exclude.Matcher) Option {
	return func(u *Uploader) { u.exclude = m }
}

// WithResolver replaces the default mimetype resolver.
func WithResolver(r *mimetype.Resolver) Option {
	return func(u *Uploader) { u.resolver = r }
}

// NewUploader creates an Uploader. A nil retrier gets the default attempt count.
func NewUploader(gateway Gateway, retrier *api.Retrier, logger logging.Logger, opts ...Option) *Uploader {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if retrier == nil {
		retrier = api.NewRetrier(utils.DefaultMaxAttempts, logger)
	}
	u := &Uploader{
		gateway:  gateway,
		retrier:  retrier,
		resolver: mimetype.NewResolver(true),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Resolver exposes the mimetype resolver so callers can report missing types.
func (u *Uploader) Resolver() *mimetype.Resolver {
	return u.resolver
}

// UploadTree mirrors rootLocalPath under a Drive folder titled destTitle,
// creating that folder at the Drive root when no folder of that title exists.
// Existing folders are reused; files are always created.
//
// Per-item failures are logged and counted in the Report and do not stop the
// walk. An error is returned only when the root folder cannot be obtained,
// the mapping invariant breaks, the root is unreadable, or ctx ends.
func (u *Uploader) UploadTree(ctx context.Context, rootLocalPath, destTitle string) (*Report, error) {
	start := time.Now()
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
		ctx = logging.ContextWithTraceID(ctx, traceID)
	}
	logger := u.logger.WithContext(ctx)

	root := filepath.Clean(rootLocalPath)
	report := &Report{Root: root, TraceID: traceID}
	mapping := pathmap.New()
	defer func() {
		report.Mapping = mapping.Snapshot()
		report.Duration = time.Since(start)
	}()

	info, err := os.Stat(root)
	if err != nil {
		return report, fmt.Errorf("read upload root: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	title := naming.Normalize(destTitle)
	rootID, res, ok := u.findOrCreateFolder(ctx, logger, report, title, "")
	if !ok {
		folderFailed(logger, report, title, "", root, res)
		return report, fmt.Errorf("%w: %q", ErrRootFolder, title)
	}
	if err := mapping.Put(root, rootID); err != nil {
		return report, err
	}
	report.RootID = rootID
	logger.Info("Destination root ready", logging.F("title", title), logging.F("id", rootID))

	w := &walk{u: u, logger: logger, report: report, mapping: mapping, root: root}
	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		subdirs, err := w.visit(ctx, dir)
		if err != nil {
			return report, err
		}
		// Push in reverse so directories are visited in listing order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	logger.Info("Upload finished",
		logging.F("foldersCreated", report.FoldersCreated),
		logging.F("foldersFound", report.FoldersFound),
		logging.F("filesCreated", report.FilesCreated),
		logging.F("failures", len(report.Failures)),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
	)
	return report, nil
}

// walk is the state of one UploadTree call.
type walk struct {
	u       *Uploader
	logger  logging.Logger
	report  *Report
	mapping *pathmap.Map
	root    string
}

// visit processes one directory: it makes sure the directory has a remote
// folder, creates folders for its subdirectories and uploads its files.
// The returned subdirectories still need their own visit.
func (w *walk) visit(ctx context.Context, dir string) ([]string, error) {
	u, logger, report := w.u, w.logger, w.report

	if dir != w.root && isHidden(filepath.Base(dir)) {
		report.Skipped++
		return nil, nil
	}

	folderID, ok := w.mapping.Get(dir)
	if ok {
		logger.Debug("In folder", logging.F("path", dir), logging.F("id", folderID))
	} else {
		parentID, ok := w.mapping.Get(filepath.Dir(dir))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingAncestor, dir)
		}
		title := naming.Normalize(filepath.Base(dir))
		var res api.Result
		folderID, res, ok = u.findOrCreateFolder(ctx, logger, report, title, parentID)
		if !ok {
			folderFailed(logger, report, title, parentID, dir, res)
			report.DirsSkipped++
			logger.Error("Skipping directory contents, no remote folder", logging.F("path", dir))
			return nil, nil
		}
		if err := w.mapping.Put(dir, folderID); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		report.DirsSkipped++
		report.Failures = append(report.Failures, Failure{Path: dir, Op: "list directory", Reason: err.Error()})
		logger.Error("Cannot list directory", logging.F("path", dir), logging.F("error", err))
		return nil, nil
	}

	var subdirs []string
	for _, entry := range entries {
		name := entry.Name()
		if isHidden(name) {
			report.Skipped++
			continue
		}
		full := filepath.Join(dir, name)

		class, err := entryKind(full, entry)
		if err != nil {
			report.Skipped++
			logger.Warn("Cannot stat entry, skipping", logging.F("path", full), logging.F("error", err))
			continue
		}
		if class == kindOther {
			report.Skipped++
			logger.Info("Skipping special file or linked directory", logging.F("path", full))
			continue
		}
		if u.excluded(w.root, full, class == kindDir) {
			report.Skipped++
			logger.Debug("Excluded", logging.F("path", full))
			continue
		}

		if class == kindDir {
			title := naming.Normalize(name)
			childID, res, ok := u.findOrCreateFolder(ctx, logger, report, title, folderID)
			if ok {
				if err := w.mapping.Put(full, childID); err != nil {
					return nil, err
				}
			} else {
				// Retried when the directory is visited; only that outcome is reported.
				logger.Warn("Folder not ready, retrying on visit",
					logging.F("title", title),
					logging.F("status", res.Status),
					logging.F("reason", res.Reason),
				)
			}
			subdirs = append(subdirs, full)
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u.uploadFile(ctx, logger, report, full, name, folderID)
	}
	return subdirs, nil
}

// findOrCreateFolder reuses the first matching folder or creates one.
// Lookups and creates are both retried on rate limits. On failure the create
// result is returned for the caller to report.
func (u *Uploader) findOrCreateFolder(ctx context.Context, logger logging.Logger, report *Report, title, parentID string) (string, api.Result, bool) {
	found := u.retrier.Do(ctx, "find folder", func(ctx context.Context) api.Result {
		return u.gateway.FindFolder(ctx, title, parentID)
	})
	if found.OK() && found.Node != nil {
		report.FoldersFound++
		logger.Info("Found folder",
			logging.F("title", title),
			logging.F("id", found.Node.ID),
			logging.F("parentId", parentID),
		)
		return found.Node.ID, found, true
	}

	created := u.retrier.Do(ctx, "create folder", func(ctx context.Context) api.Result {
		return u.gateway.CreateFolder(ctx, title, "", parentID)
	})
	if created.OK() && created.Node != nil {
		report.FoldersCreated++
		logger.Info("Created folder",
			logging.F("title", title),
			logging.F("id", created.Node.ID),
			logging.F("parentId", parentID),
		)
		return created.Node.ID, created, true
	}
	return "", created, false
}

func folderFailed(logger logging.Logger, report *Report, title, parentID, localPath string, res api.Result) {
	report.FoldersFailed++
	report.addFailure(localPath, res, "create folder")
	logger.Error("Failed to create folder",
		logging.F("title", title),
		logging.F("parentId", parentID),
		logging.F("status", res.Status),
		logging.F("reason", res.Reason),
	)
}

func (u *Uploader) uploadFile(ctx context.Context, logger logging.Logger, report *Report, full, name, parentID string) {
	mimeType := u.resolver.Resolve(full)
	if mimeType == "" {
		logger.Warn("No mimetype, using octet-stream",
			logging.F("path", full),
			logging.F("extension", mimetype.Extension(full)),
		)
		mimeType = utils.MimeTypeOctetStream
	}

	title := naming.Normalize(name)
	res := u.retrier.Do(ctx, "create file", func(ctx context.Context) api.Result {
		return u.gateway.CreateFile(ctx, title, "", parentID, mimeType, full)
	})
	if res.OK() && res.Node != nil {
		report.FilesCreated++
		logger.Info("Created file",
			logging.F("title", title),
			logging.F("id", res.Node.ID),
			logging.F("parentId", parentID),
			logging.F("mimeType", mimeType),
		)
		return
	}

	report.FilesFailed++
	report.addFailure(full, res, "create file")
	logger.Error("Failed to create file",
		logging.F("title", title),
		logging.F("parentId", parentID),
		logging.F("status", res.Status),
		logging.F("reason", res.Reason),
	)
}

func (u *Uploader) excluded(root, full string, isDir bool) bool {
	if u.exclude.Len() == 0 {
		return false
	}
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return false
	}
	return u.exclude.Match(path.Clean(filepath.ToSlash(rel)), isDir)
}

type entryClass int

const (
	kindFile entryClass = iota
	kindDir
	kindOther
)

// entryKind classifies a directory entry. Symlinks to regular files are
// uploaded as files; symlinks to directories are not followed.
func entryKind(full string, entry fs.DirEntry) (entryClass, error) {
	mode := entry.Type()
	if mode&fs.ModeSymlink != 0 {
		info, err := os.Stat(full)
		if err != nil {
			return kindOther, err
		}
		if info.Mode().IsRegular() {
			return kindFile, nil
		}
		return kindOther, nil
	}
	switch {
	case entry.IsDir():
		return kindDir, nil
	case mode.IsRegular():
		return kindFile, nil
	default:
		return kindOther, nil
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
