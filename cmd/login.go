package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/glintlabs/glint/internal/auth"
	"github.com/glintlabs/glint/internal/config"
)

var (
	loginDeviceURL string
	loginTokenURL  string
	loginClientID  string
	loginScope     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with an OAuth device code",
	Long:  `Obtain an access token for the active profile via the OAuth device-code flow.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		if loginClientID == "" {
			log.Fatalf("--client-id is required")
		}

		client := auth.NewClient(auth.Endpoints{
			DeviceAuthURL: loginDeviceURL,
			TokenURL:      loginTokenURL,
			ClientID:      loginClientID,
			Scope:         loginScope,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		code, err := client.RequestDeviceCode(ctx)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}

		fmt.Printf("Open %s and enter code: %s\n", code.VerificationURI, code.UserCode)
		fmt.Println("Waiting for approval (Ctrl+C to abort)...")

		token, err := client.PollToken(ctx, code)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}

		cfg.SetAccessToken(token.AccessToken)
		if err := cfg.Save(); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}

		fmt.Printf("Logged in. Token stored on profile '%s'.\n", cfg.ActiveProfile)
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginDeviceURL, "device-url", "", "Device authorization endpoint")
	loginCmd.Flags().StringVar(&loginTokenURL, "token-url", "", "Token endpoint")
	loginCmd.Flags().StringVar(&loginClientID, "client-id", "", "OAuth client ID")
	loginCmd.Flags().StringVar(&loginScope, "scope", "", "OAuth scope")
}
