package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Rohianon/ptracker/cmd/ptracker/internal/auth"
	"github.com/Rohianon/ptracker/cmd/ptracker/internal/output"
	"github.com/Rohianon/ptracker/pkg/middleware"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Identify yourself to the portfolio service.",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store your identity",
	Long: `Store the user id the CLI acts as.

With --with-secret the CLI signs a bearer token using the service's JWT
secret, read from the terminal. Without it the id is sent in the trusted
identity header, which suits a service running behind a gateway.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget stored credentials",
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE:  runStatus,
}

var (
	userFlag       string
	withSecretFlag bool
	ttlFlag        time.Duration
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)

	loginCmd.Flags().StringVarP(&userFlag, "user", "u", "", "user id")
	loginCmd.Flags().BoolVar(&withSecretFlag, "with-secret", false, "sign a bearer token with the service's JWT secret")
	loginCmd.Flags().DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
}

func runLogin(cmd *cobra.Command, args []string) error {
	userID := userFlag
	if userID == "" {
		userID = prompt("User ID")
	}
	if userID == "" {
		return fmt.Errorf("a user id is required")
	}

	stored := &auth.StoredAuth{UserID: userID}
	if withSecretFlag {
		secret := promptSecret("JWT secret")
		if secret == "" {
			return fmt.Errorf("a secret is required with --with-secret")
		}
		token, err := middleware.NewToken(secret, userID, ttlFlag)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		stored.AccessToken = token
		stored.ExpiresAt = time.Now().Add(ttlFlag)
	}

	if err := auth.Save(stored); err != nil {
		return fmt.Errorf("could not save credentials: %w", err)
	}

	output.Success("Logged in as " + userID)
	if stored.AccessToken != "" {
		output.Info("Token expires " + stored.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := auth.Clear(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	output.Success("Logged out successfully")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	stored, err := auth.Load()
	if err != nil {
		return fmt.Errorf("failed to read auth: %w", err)
	}

	if stored == nil || stored.UserID == "" {
		if getFormat() == "json" {
			return output.JSON(map[string]any{"logged_in": false})
		}
		output.Info("Not logged in")
		output.Info("Run 'ptracker auth login' to login")
		return nil
	}

	expired := stored.Expired(time.Now())
	mode := "header"
	if stored.AccessToken != "" {
		mode = "bearer"
	}

	if getFormat() == "json" {
		return output.JSON(map[string]any{
			"logged_in":  !expired,
			"user_id":    stored.UserID,
			"mode":       mode,
			"expires_at": stored.ExpiresAt,
			"expired":    expired,
		})
	}

	if expired {
		output.Warning("Session expired")
		output.Info("Run 'ptracker auth login --with-secret' to login again")
		return nil
	}

	output.Success("Logged in")
	fmt.Println()
	pairs := [][]string{
		{"User ID", stored.UserID},
		{"Mode", mode},
	}
	if mode == "bearer" {
		pairs = append(pairs, []string{"Expires", stored.ExpiresAt.Format(time.RFC3339)})
	}
	output.KeyValue(pairs)

	return nil
}

func prompt(label string) string {
	fmt.Printf("%s: ", label)
	reader := bufio.NewReader(os.Stdin)
	text, _ := reader.ReadString('\n')
	return strings.TrimSpace(text)
}

func promptSecret(label string) string {
	fmt.Printf("%s: ", label)
	bytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(bytes)
}
