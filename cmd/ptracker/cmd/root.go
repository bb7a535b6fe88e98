package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rohianon/ptracker/cmd/ptracker/internal/auth"
	"github.com/Rohianon/ptracker/cmd/ptracker/internal/client"
	"github.com/Rohianon/ptracker/cmd/ptracker/internal/output"
)

var (
	cfgFile string
	format  string

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
)

var rootCmd = &cobra.Command{
	Use:   "ptracker",
	Short: "ptracker - track portfolios, lots and net worth",
	Long: titleStyle.Render(`
╔═══════════════════════════════════════════════════════════╗
║  ptracker - Portfolio Tracker CLI                         ║
╚═══════════════════════════════════════════════════════════╝
`) + `
Record purchase lots, group them into portfolios and value
everything against live quotes from your terminal.

Get started:
  ptracker auth login --user <id>   Identify yourself to the service
  ptracker portfolio create Core    Create a portfolio
  ptracker networth                 Value every portfolio
  ptracker --help                   Show all commands`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		output.Error(err.Error())
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.ptracker/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "output format: table, json")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := auth.Dir()
		if err != nil {
			output.Error("Error: " + err.Error())
			os.Exit(1)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			output.Error("Error creating config dir: " + err.Error())
		}

		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetDefault("api_url", "http://localhost:8008")
	viper.SetDefault("format", "table")
	viper.SetDefault("currency", "USD")
	viper.SetDefault("user_header", "X-User-ID")
	viper.SetDefault("kafka_brokers", []string{"localhost:9092"})

	viper.SetEnvPrefix("PTRACKER")
	viper.AutomaticEnv()

	// a missing config file just means defaults
	_ = viper.ReadInConfig()
}

func getFormat() string {
	if format != "" {
		return format
	}
	return viper.GetString("format")
}

// requireAuth builds a client carrying the stored identity.
func requireAuth() (*client.Client, error) {
	stored, err := auth.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if stored == nil || stored.UserID == "" {
		return nil, fmt.Errorf("not logged in, run 'ptracker auth login' first")
	}

	c := client.New(viper.GetString("api_url"), nil)
	if stored.AccessToken != "" {
		if !auth.IsLoggedIn() {
			return nil, fmt.Errorf("session expired, run 'ptracker auth login' again")
		}
		c.SetToken(stored.AccessToken)
	} else {
		c.SetUser(stored.UserID, viper.GetString("user_header"))
	}
	return c, nil
}
