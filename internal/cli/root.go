package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dl-alexandre/gdmirror/internal/config"
	"github.com/dl-alexandre/gdmirror/internal/logging"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/dl-alexandre/gdmirror/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	debugTransport *logging.DebugTransport
	appConfig      = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "gdmirror",
	Short: "Mirror local directory trees into Google Drive",
	Long: `gdmirror uploads local directory trees into Google Drive, reusing
existing folders, and keeps a local sqlite cache of the files it creates.

Every command prints a JSON envelope by default; use --output table for
human-readable tables.`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupGlobals,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := GetGlobalFlags()
		out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
		return out.WriteSuccess("version", version.Get())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.Profile, "profile", "default", "Authentication profile to use")
	pf.StringVar((*string)(&globalFlags.OutputFormat), "output", "json", "Output format (json, table)")
	pf.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	pf.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&globalFlags.Debug, "debug", false, "Log every Drive request")
	pf.StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	pf.StringVar(&globalFlags.LogFile, "log-file", "", "Also write JSON logs to this file")
	pf.BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func setupGlobals(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(globalFlags.Config)
	if err != nil {
		if cmd.Annotations[lenientConfig] != "true" {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
				WithContext("suggestedAction", "run 'gdmirror config reset' or fix the file").Build())
		}
		fmt.Fprintln(os.Stderr, "Warning:", err)
		cfg = config.DefaultConfig()
	}
	appConfig = cfg

	flags := cmd.Flags()
	if !flags.Changed("profile") && cfg.DefaultProfile != "" {
		globalFlags.Profile = cfg.DefaultProfile
	}
	if !flags.Changed("output") && cfg.DefaultOutputFormat != "" {
		globalFlags.OutputFormat = cfg.DefaultOutputFormat
	}
	if err := validateGlobalFlags(); err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	logger, debugTransport, err = logging.NewDebugLoggerWithTransport(buildLogConfig(globalFlags, cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// buildLogConfig merges the logLevel setting with the command-line switches.
// Flags win over the config file.
func buildLogConfig(flags types.GlobalFlags, cfg *config.Config) logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.OutputFile = flags.LogFile
	lc.EnableColor = cfg.ColorOutput
	lc.EnableTimestamp = true

	level := cfg.LogLevel
	switch {
	case flags.Debug:
		level = "debug"
	case flags.Verbose:
		level = "verbose"
	case flags.Quiet:
		level = "quiet"
	}

	switch level {
	case "debug":
		lc.Level = logging.DEBUG
		lc.EnableDebug = true
	case "verbose":
		lc.Level = logging.DEBUG
	case "quiet":
		lc.Level = logging.ERROR
	default:
		lc.Level = logging.INFO
	}

	// JSON output stays machine-readable on stdout; console logs go to
	// stderr but are still suppressed unless asked for.
	if flags.OutputFormat == types.OutputFormatJSON && level == "normal" {
		lc.Level = logging.WARN
	}
	return lc
}

func validateGlobalFlags() error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}
	globalFlags.OutputFormat = types.OutputFormat(strings.ToLower(string(globalFlags.OutputFormat)))

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	if globalFlags.Profile == "" {
		return fmt.Errorf("profile must not be empty")
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return utils.ExitSuccess
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		if !appErr.Reported {
			fmt.Fprintln(os.Stderr, "Error:", appErr.CLIError.Message)
		}
		return utils.GetExitCode(appErr.CLIError.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return utils.ExitUnknown
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
