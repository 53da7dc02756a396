package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/api"
	"github.com/dl-alexandre/gdmirror/internal/logging"
	syncer "github.com/dl-alexandre/gdmirror/internal/sync"
	"github.com/dl-alexandre/gdmirror/internal/sync/exclude"
	"github.com/dl-alexandre/gdmirror/internal/sync/mimetype"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/spf13/cobra"
)

var uploadTreeCmd = &cobra.Command{
	Use:   "upload-tree <local-dir> <dest-title>",
	Short: "Mirror a local directory tree into Drive",
	Long: `Upload every non-hidden file under <local-dir> into a Drive folder
titled <dest-title>, recreating the directory structure.

Folders that already exist under the same parent with the same title are
reused. Files are always created, so running twice duplicates files.
A ':' in any name becomes '/' on Drive.`,
	Args: cobra.ExactArgs(2),
	RunE: runUploadTree,
}

var (
	uploadExclude     []string
	uploadDumpMissing bool
	uploadNoSniff     bool
)

func init() {
	uploadTreeCmd.Flags().StringSliceVar(&uploadExclude, "exclude", nil, "Extra exclude patterns (glob, or dir/ for a directory)")
	uploadTreeCmd.Flags().BoolVar(&uploadDumpMissing, "dump-missing", false, "Report extensions that had no known MIME type")
	uploadTreeCmd.Flags().BoolVar(&uploadNoSniff, "no-sniff", false, "Do not inspect file content when the extension is unknown")

	rootCmd.AddCommand(uploadTreeCmd)
}

// uploadSummary is the upload-tree result: the report plus, on request, the
// extensions that had no MIME type.
type uploadSummary struct {
	*syncer.Report
	MissingExtensions []string `json:"missingExtensions,omitempty"`
}

func (s uploadSummary) Headers() []string { return []string{"Metric", "Value"} }

func (s uploadSummary) Rows() [][]string {
	r := s.Report
	rows := [][]string{
		{"Root", r.Root},
		{"Root folder ID", r.RootID},
		{"Folders created", fmt.Sprint(r.FoldersCreated)},
		{"Folders reused", fmt.Sprint(r.FoldersFound)},
		{"Folders failed", fmt.Sprint(r.FoldersFailed)},
		{"Files created", fmt.Sprint(r.FilesCreated)},
		{"Files failed", fmt.Sprint(r.FilesFailed)},
		{"Entries skipped", fmt.Sprint(r.Skipped)},
		{"Directories skipped", fmt.Sprint(r.DirsSkipped)},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	}
	for _, f := range r.Failures {
		rows = append(rows, []string{"Failed " + f.Op, fmt.Sprintf("%s (%d %s)", f.Path, f.Status, f.Reason)})
	}
	for _, ext := range s.MissingExtensions {
		rows = append(rows, []string{"No MIME type", "." + ext})
	}
	return rows
}

func (s uploadSummary) EmptyMessage() string { return "Nothing uploaded" }

// uploadTreeOptions is everything upload-tree needs besides the gateway.
type uploadTreeOptions struct {
	Root        string
	Title       string
	Exclude     []string
	DumpMissing bool
	Sniff       bool
}

// uploadTree runs one upload against gw and converts failures to AppErrors.
func uploadTree(ctx context.Context, gw syncer.Gateway, retrier *api.Retrier, log logging.Logger, opts uploadTreeOptions) (uploadSummary, error) {
	matcher, err := exclude.New(opts.Exclude)
	if err != nil {
		return uploadSummary{}, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	uploader := syncer.NewUploader(gw, retrier, log,
		syncer.WithExclude(matcher),
		syncer.WithResolver(mimetype.NewResolver(opts.Sniff)),
	)
	report, err := uploader.UploadTree(ctx, opts.Root, opts.Title)
	summary := uploadSummary{Report: report}
	if opts.DumpMissing {
		summary.MissingExtensions = uploader.Resolver().MissingExtensions()
		for _, ext := range summary.MissingExtensions {
			log.Info("no MIME type for extension", logging.F("extension", ext))
		}
	}
	if err == nil {
		return summary, nil
	}

	var cliErr *utils.CLIErrorBuilder
	switch {
	case errors.Is(err, syncer.ErrMissingAncestor):
		cliErr = utils.NewCLIError(utils.ErrCodeTreeInvariant, err.Error())
	case errors.Is(err, syncer.ErrRootFolder):
		cliErr = utils.NewCLIError(utils.ErrCodeNetworkError, err.Error())
		if report != nil && len(report.Failures) > 0 {
			last := report.Failures[len(report.Failures)-1]
			cliErr.WithHTTPStatus(last.Status).WithDriveReason(last.Reason)
		}
	case errors.Is(err, context.Canceled):
		cliErr = utils.NewCLIError(utils.ErrCodeCancelled, "Upload interrupted")
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syncer.ErrNotDirectory):
		cliErr = utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error())
	default:
		cliErr = utils.NewCLIError(utils.ErrCodeUnknown, err.Error())
	}
	if report != nil {
		cliErr.WithContext("filesCreated", report.FilesCreated).
			WithContext("foldersCreated", report.FoldersCreated)
	}
	return summary, utils.NewAppError(cliErr.Build())
}

func runUploadTree(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	reqCtx := api.NewRequestContext(flags.Profile, types.RequestTypeMutation)
	ctx = logging.ContextWithTraceID(ctx, reqCtx.TraceID)

	client, err := newDriveClient(ctx, "upload-tree")
	if err != nil {
		return writeAppError(out, "upload-tree", err)
	}

	patterns := append(append([]string{}, appConfig.ExcludePatterns...), uploadExclude...)
	summary, err := uploadTree(ctx, client, newRetrier(), logger, uploadTreeOptions{
		Root:        args[0],
		Title:       args[1],
		Exclude:     patterns,
		DumpMissing: uploadDumpMissing,
		Sniff:       !uploadNoSniff,
	})
	if err != nil {
		return writeAppError(out, "upload-tree", err)
	}
	if !summary.OK() {
		out.AddWarning(utils.ErrCodePartialUpload,
			fmt.Sprintf("%d item(s) could not be created; see failures", len(summary.Failures)), "warning")
	}
	return out.WriteSuccess("upload-tree", summary)
}
