package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/glintlabs/glint/internal/app"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "glint",
	Short: "A screen-aware assistant in your terminal",
	Long:  `Glint answers questions about what is on your screen, streaming the answer as it arrives.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Default behavior: run the assistant
		application, err := app.NewApplication(debugFlag)
		if err != nil {
			log.Fatalf("Failed to create application: %v", err)
		}
		defer application.Stop()

		if err := application.Start(); err != nil {
			log.Fatalf("Application error: %v", err)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution error: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(loginCmd)
}
