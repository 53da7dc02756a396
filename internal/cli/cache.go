package cli

import (
	"fmt"

	"github.com/dl-alexandre/gdmirror/internal/cache"
	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Local metadata cache commands",
}

var cacheInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the metadata cache",
	Args:  cobra.NoArgs,
	RunE:  runCacheInit,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached file titles and ids",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	cacheCmd.AddCommand(cacheInitCmd)
	rootCmd.AddCommand(cacheCmd, listCmd)
}

// cacheEntries renders the title/id listing
type cacheEntries []cache.Entry

func (c cacheEntries) Headers() []string { return []string{"Title", "ID"} }

func (c cacheEntries) Rows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, e := range c {
		rows = append(rows, []string{e.Title, e.ID})
	}
	return rows
}

func (c cacheEntries) EmptyMessage() string { return "Cache is empty" }

func runCacheInit(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	db, path, err := openCache()
	if err != nil {
		return out.WriteError("cache.init", utils.NewCLIError(utils.ErrCodeCacheError,
			fmt.Sprintf("Cannot create cache: %v", err)).WithContext("path", path).Build())
	}
	defer db.Close()

	version, err := db.SchemaVersion(cmd.Context())
	if err != nil {
		return out.WriteError("cache.init", utils.NewCLIError(utils.ErrCodeCacheError, err.Error()).Build())
	}
	logger.Info("cache ready", logging.F("path", path), logging.F("schemaVersion", version))
	return out.WriteSuccess("cache.init", map[string]interface{}{
		"path":          path,
		"schemaVersion": version,
	})
}

func runList(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	db, path, err := openCache()
	if err != nil {
		return out.WriteError("list", utils.NewCLIError(utils.ErrCodeCacheError,
			fmt.Sprintf("Cannot open cache: %v", err)).WithContext("path", path).Build())
	}
	defer db.Close()

	entries, err := db.ListFiles(cmd.Context())
	if err != nil {
		return out.WriteError("list", utils.NewCLIError(utils.ErrCodeCacheError, err.Error()).Build())
	}
	if entries == nil {
		entries = []cache.Entry{}
	}
	return out.WriteSuccess("list", cacheEntries(entries))
}
