package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dl-alexandre/gdmirror/internal/api"
	"github.com/dl-alexandre/gdmirror/internal/cache"
	drverrors "github.com/dl-alexandre/gdmirror/internal/errors"
	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/spf13/cobra"
)

// noParent is the parent argument that means "Drive root".
const noParent = "none"

var showCmd = &cobra.Command{
	Use:   "show <file-id>",
	Short: "Print a file's remote metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var downloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download file content",
	Long:  "Write a file's content to stdout, or to --output-file.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

var insertCmd = &cobra.Command{
	Use:   "insert <title> <description> <parent-id|none> <mime-type> <file>",
	Short: "Upload a single file and record it in the cache",
	Args:  cobra.ExactArgs(5),
	RunE:  runInsert,
}

var renameCmd = &cobra.Command{
	Use:   "rename <file-id> <new-title>",
	Short: "Rename a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var easyRenameCmd = &cobra.Command{
	Use:   "easy-rename <old-title> <new-title>",
	Short: "Rename a cached file by its title",
	Args:  cobra.ExactArgs(2),
	RunE:  runEasyRename,
}

var updateCmd = &cobra.Command{
	Use:   "update <file-id> <title> <description> <mime-type> <file> <new-revision>",
	Short: "Replace a file's metadata and content",
	Args:  cobra.ExactArgs(6),
	RunE:  runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Delete a file from Drive and from the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var downloadOutputFile string

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutputFile, "output-file", "O", "", "Write content to this path instead of stdout")

	rootCmd.AddCommand(showCmd, downloadCmd, insertCmd, renameCmd, easyRenameCmd, updateCmd, deleteCmd)
}

// driveFiles is the part of the Drive client the single-file commands use.
type driveFiles interface {
	CreateFile(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result
	GetFile(ctx context.Context, id string) api.Result
	RenameFile(ctx context.Context, id, title string) api.Result
	UpdateFile(ctx context.Context, id, title, description, mimeType, localPath string, newRevision bool) api.Result
	DeleteFile(ctx context.Context, id string) api.Result
	Download(ctx context.Context, id string, w io.Writer) (int64, api.Result)
}

// fileOps runs one single-file operation against Drive and keeps the cache
// in step. A cache failure after a successful remote change is a warning,
// not an error: the remote side is the source of truth.
type fileOps struct {
	gw       driveFiles
	cache    *cache.DB
	retrier  *api.Retrier
	logger   logging.Logger
	reqCtx   *types.RequestContext
	warnings []types.CLIWarning
}

func (o *fileOps) call(ctx context.Context, op string, fn func(context.Context) api.Result) (*types.RemoteNode, error) {
	res := o.retrier.Do(ctx, op, fn)
	if !res.OK() {
		return nil, drverrors.FromResult(op, res, o.reqCtx)
	}
	return res.Node, nil
}

func (o *fileOps) cacheWarning(op string, err error) {
	o.logger.Warn("cache out of sync", logging.F("op", op), logging.F("error", err))
	o.warnings = append(o.warnings, types.CLIWarning{
		Code:     utils.ErrCodeCacheError,
		Message:  fmt.Sprintf("%s succeeded remotely but the cache was not updated: %v", op, err),
		Severity: "warning",
	})
}

func (o *fileOps) show(ctx context.Context, id string) (*types.RemoteNode, error) {
	o.reqCtx.InvolvedFileIDs = []string{id}
	return o.call(ctx, "get", func(ctx context.Context) api.Result {
		return o.gw.GetFile(ctx, id)
	})
}

func (o *fileOps) download(ctx context.Context, id string, w io.Writer) (int64, error) {
	o.reqCtx.InvolvedFileIDs = []string{id}
	n, res := o.gw.Download(ctx, id, w)
	if !res.OK() {
		return n, drverrors.FromResult("download", res, o.reqCtx)
	}
	return n, nil
}

func (o *fileOps) insert(ctx context.Context, title, description, parent, mimeType, localPath string) (*types.RemoteNode, error) {
	if parent == noParent {
		parent = ""
	}
	if parent != "" {
		o.reqCtx.InvolvedParentIDs = []string{parent}
	}
	node, err := o.call(ctx, "insert", func(ctx context.Context) api.Result {
		return o.gw.CreateFile(ctx, title, description, parent, mimeType, localPath)
	})
	if err != nil {
		return nil, err
	}
	if err := o.cache.UpsertFile(ctx, node); err != nil {
		o.cacheWarning("insert", err)
	}
	return node, nil
}

func (o *fileOps) rename(ctx context.Context, id, title string) (*types.RemoteNode, error) {
	o.reqCtx.InvolvedFileIDs = []string{id}
	node, err := o.call(ctx, "rename", func(ctx context.Context) api.Result {
		return o.gw.RenameFile(ctx, id, title)
	})
	if err != nil {
		return nil, err
	}

	err = o.cache.RenameFile(ctx, id, title)
	if errors.Is(err, cache.ErrNotFound) {
		err = o.cache.UpsertFile(ctx, node)
	}
	if err != nil {
		o.cacheWarning("rename", err)
	}
	return node, nil
}

func (o *fileOps) easyRename(ctx context.Context, oldTitle, newTitle string) (*types.RemoteNode, error) {
	id, err := o.cache.FindIDByTitle(ctx, oldTitle)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound,
			fmt.Sprintf("No cached file titled %q", oldTitle)).
			WithContext("suggestedAction", "use 'gdmirror list' to see cached titles, or 'rename' with a file id").Build())
	case errors.Is(err, cache.ErrAmbiguousTitle):
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("More than one cached file is titled %q; rename by id instead", oldTitle)).Build())
	case err != nil:
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeCacheError, err.Error()).Build())
	}
	return o.rename(ctx, id, newTitle)
}

func (o *fileOps) update(ctx context.Context, id, title, description, mimeType, localPath string, newRevision bool) (*types.RemoteNode, error) {
	o.reqCtx.InvolvedFileIDs = []string{id}
	node, err := o.call(ctx, "update", func(ctx context.Context) api.Result {
		return o.gw.UpdateFile(ctx, id, title, description, mimeType, localPath, newRevision)
	})
	if err != nil {
		return nil, err
	}
	if err := o.cache.UpsertFile(ctx, node); err != nil {
		o.cacheWarning("update", err)
	}
	return node, nil
}

func (o *fileOps) delete(ctx context.Context, id string) error {
	o.reqCtx.InvolvedFileIDs = []string{id}
	if _, err := o.call(ctx, "delete", func(ctx context.Context) api.Result {
		return o.gw.DeleteFile(ctx, id)
	}); err != nil {
		return err
	}
	if err := o.cache.DeleteFile(ctx, id); err != nil {
		o.cacheWarning("delete", err)
	}
	return nil
}

// withFileOps builds fileOps for a command, runs fn and writes the result.
// needCache opens the metadata cache for the commands that maintain it.
func withFileOps(cmd *cobra.Command, command string, reqType types.RequestType, needCache bool,
	fn func(ctx context.Context, ops *fileOps) (interface{}, error)) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	reqCtx := api.NewRequestContext(flags.Profile, reqType)
	ctx := logging.ContextWithTraceID(cmd.Context(), reqCtx.TraceID)

	ops := &fileOps{retrier: newRetrier(), logger: logger.WithContext(ctx), reqCtx: reqCtx}
	if needCache {
		db, path, err := openCache()
		if err != nil {
			return out.WriteError(command, utils.NewCLIError(utils.ErrCodeCacheError,
				fmt.Sprintf("Cannot open cache: %v", err)).WithContext("path", path).Build())
		}
		defer db.Close()
		ops.cache = db
	}

	client, err := newDriveClient(ctx, command)
	if err != nil {
		return writeAppError(out, command, err)
	}
	ops.gw = client

	data, err := fn(ctx, ops)
	for _, w := range ops.warnings {
		out.AddWarning(w.Code, w.Message, w.Severity)
	}
	if err != nil {
		return writeAppError(out, command, err)
	}
	if data == nil {
		return nil
	}
	return out.WriteSuccess(command, data)
}

// writeAppError reports err, keeping the code of an *utils.AppError.
func writeAppError(out *OutputWriter, command string, err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return out.WriteError(command, appErr.CLIError)
	}
	if errors.Is(err, context.Canceled) {
		return out.WriteError(command, utils.NewCLIError(utils.ErrCodeCancelled, "Interrupted").Build())
	}
	return out.WriteError(command, utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
}

func runShow(cmd *cobra.Command, args []string) error {
	return withFileOps(cmd, "show", types.RequestTypeGetByID, false, func(ctx context.Context, ops *fileOps) (interface{}, error) {
		return ops.show(ctx, args[0])
	})
}

func runDownload(cmd *cobra.Command, args []string) error {
	return withFileOps(cmd, "download", types.RequestTypeDownloadOrExp, false, func(ctx context.Context, ops *fileOps) (interface{}, error) {
		if downloadOutputFile == "" {
			// Content owns stdout, so no envelope is written.
			_, err := ops.download(ctx, args[0], cmd.OutOrStdout())
			return nil, err
		}

		f, err := os.Create(downloadOutputFile)
		if err != nil {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error()).Build())
		}
		n, err := ops.download(ctx, args[0], f)
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(downloadOutputFile)
			return nil, err
		}
		return map[string]interface{}{
			"id":    args[0],
			"path":  downloadOutputFile,
			"bytes": n,
		}, nil
	})
}

func runInsert(cmd *cobra.Command, args []string) error {
	return withFileOps(cmd, "insert", types.RequestTypeMutation, true, func(ctx context.Context, ops *fileOps) (interface{}, error) {
		return ops.insert(ctx, args[0], args[1], args[2], args[3], args[4])
	})
}

func runRename(cmd *cobra.Command, args []string) error {
	return withFileOps(cmd, "rename", types.RequestTypeMutation, true, func(ctx context.Context, ops *fileOps) (interface{}, error) {
		return ops.rename(ctx, args[0], args[1])
	})
}

func runEasyRename(cmd *cobra.Command, args []string) error {
	return withFileOps(cmd, "easy-rename", types.RequestTypeMutation, true, func(ctx context.Context, ops *fileOps) (interface{}, error) {
		return ops.easyRename(ctx, args[0], args[1])
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	newRevision, err := strconv.ParseBool(args[5])
	if err != nil {
		flags := GetGlobalFlags()
		out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
		return out.WriteError("update", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("new-revision must be true or false, got %q", args[5])).Build())
	}
	return withFileOps(cmd, "update", types.RequestTypeMutation, true, func(ctx context.Context, ops *fileOps) (interface{}, error) {
		return ops.update(ctx, args[0], args[1], args[2], args[3], args[4], newRevision)
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withFileOps(cmd, "delete", types.RequestTypeMutation, true, func(ctx context.Context, ops *fileOps) (interface{}, error) {
		if err := ops.delete(ctx, args[0]); err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": args[0], "deleted": true}, nil
	})
}
