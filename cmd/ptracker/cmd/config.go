package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rohianon/ptracker/cmd/ptracker/internal/auth"
	"github.com/Rohianon/ptracker/cmd/ptracker/internal/output"
)

var configKeys = []string{"api_url", "format", "currency", "user_header"}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
	Long:  "View and modify CLI configuration.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  api_url      - Portfolio service URL (default: http://localhost:8008)
  format       - Default output format: table, json (default: table)
  currency     - Display currency (default: USD)
  user_header  - Identity header for header logins (default: X-User-ID)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings := make(map[string]any, len(configKeys))
	pairs := make([][]string, 0, len(configKeys))
	for _, k := range configKeys {
		settings[k] = viper.GetString(k)
		pairs = append(pairs, []string{k, viper.GetString(k)})
	}

	if getFormat() == "json" {
		return output.JSON(settings)
	}

	output.Header("Configuration")
	fmt.Println()
	output.KeyValue(pairs)

	if viper.ConfigFileUsed() != "" {
		fmt.Println()
		output.Info("Config file: " + viper.ConfigFileUsed())
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if !slices.Contains(configKeys, key) {
		return fmt.Errorf("unknown config key %q, valid keys: %v", key, configKeys)
	}
	if key == "format" && value != "table" && value != "json" {
		return fmt.Errorf("format must be 'table' or 'json'")
	}

	viper.Set(key, value)

	configFile, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}

	output.Success(fmt.Sprintf("Set %s = %s", key, value))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(map[string]string{
			"config_file": configFile,
			"config_dir":  filepath.Dir(configFile),
		})
	}

	fmt.Println(configFile)
	return nil
}

func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := auth.Dir()
	if err != nil {
		return "", fmt.Errorf("could not find home directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}
