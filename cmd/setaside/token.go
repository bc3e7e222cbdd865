package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside/internal/httpapi"
)

var tokenCmd = &cobra.Command{
	Use:   "token [subject]",
	Short: "Issue a bearer token for 'setaside serve'",
	Long: `Issue an HS256 token signed with SETASIDE_JWT_SECRET (or --secret) that
subscribers present to 'setaside serve'. The subject names the device or
extension and shows up in debug logs.`,
	Example: `  SETASIDE_JWT_SECRET=... setaside token laptop-firefox --ttl 2160h`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runToken,
}

var (
	tokenSecret string
	tokenTTL    time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Signing secret (default: $SETASIDE_JWT_SECRET)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := tokenSecret
	if secret == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		secret = cfg.JWTSecret
	}
	if secret == "" {
		return errors.New("no signing secret: set SETASIDE_JWT_SECRET or pass --secret")
	}
	if tokenTTL <= 0 {
		return errors.New("--ttl must be positive")
	}

	subject := "setaside"
	if len(args) == 1 {
		subject = args[0]
	}
	token, err := httpapi.IssueToken(secret, subject, tokenTTL)
	if err != nil {
		return err
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]string{
			"token":      token,
			"subject":    subject,
			"expires_at": time.Now().Add(tokenTTL).UTC().Format(time.RFC3339),
		})
	}
	outputText(cmd, "%s\n", token)
	return nil
}
