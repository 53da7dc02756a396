package cli

import (
	"fmt"

	"github.com/dl-alexandre/gdmirror/internal/config"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"github.com/spf13/cobra"
)

// lenientConfig marks commands that must run even when the config file is
// invalid, so it can be repaired.
const lenientConfig = "lenientConfig"

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Configuration management",
	Long:        "Show and change gdmirror settings",
	Annotations: map[string]string{lenientConfig: "true"},
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show the effective configuration",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{lenientConfig: "true"},
	RunE:        runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Set a configuration value",
	Long:        "Set a configuration value. Valid keys: " + fmt.Sprint(config.Keys()),
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{lenientConfig: "true"},
	RunE:        runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset configuration to defaults",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{lenientConfig: "true"},
	RunE:        runConfigReset,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() (string, error) {
	if globalFlags.Config != "" {
		return globalFlags.Config, nil
	}
	return config.GetConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	path, err := configPath()
	if err != nil {
		return out.WriteError("config.show", utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}
	cachePath, err := appConfig.ResolveCachePath()
	if err != nil {
		return out.WriteError("config.show", utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}

	return out.WriteSuccess("config.show", map[string]interface{}{
		"path":                path,
		"defaultProfile":      appConfig.DefaultProfile,
		"defaultOutputFormat": appConfig.DefaultOutputFormat,
		"maxAttempts":         appConfig.MaxAttempts,
		"uploadChunkSize":     appConfig.UploadChunkSize,
		"resumableThreshold":  appConfig.ResumableThreshold,
		"logLevel":            appConfig.LogLevel,
		"colorOutput":         appConfig.ColorOutput,
		"cachePath":           cachePath,
		"excludePatterns":     appConfig.ExcludePatterns,
	})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	key, value := args[0], args[1]

	path, err := configPath()
	if err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}

	// Start from the file alone so env overrides are not persisted.
	cfg, err := config.LoadFile(path)
	if err != nil {
		out.Log("Existing configuration unreadable (%v); starting from defaults", err)
		cfg = config.DefaultConfig()
	}
	if err := cfg.Set(key, value); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("key", key).Build())
	}
	if err := cfg.Save(path); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build())
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
		"path":  path,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	path, err := configPath()
	if err != nil {
		return out.WriteError("config.reset", utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}
	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return out.WriteError("config.reset", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build())
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", cfg)
}
