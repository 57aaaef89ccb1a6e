// Package cli implements the denticlictl operator commands. Every command
// talks to a running API server; nothing here touches the database directly.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL    string
	authToken string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "denticlictl",
	Short: "Operator tooling for the DentiClinic API",
	Long:  "Run canonical passes, export summaries, and maintain the search index against a running DentiClinic API server.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (default: $DENTICLINIC_API_URL or http://localhost:8787)")
	RootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Access token (default: $DENTICLINIC_API_TOKEN)")
}

func baseURL() string {
	if apiURL != "" {
		return apiURL
	}
	if env := os.Getenv("DENTICLINIC_API_URL"); env != "" {
		return env
	}
	return "http://localhost:8787"
}

func token() string {
	if authToken != "" {
		return authToken
	}
	return os.Getenv("DENTICLINIC_API_TOKEN")
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
