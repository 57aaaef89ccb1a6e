package cli

import (
	"net/http"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the lead search index from PostgreSQL",
		Args:  cobra.NoArgs,
		Run:   runReindex,
	}
	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	data, _, err := apiRequest(cmd.Context(), http.MethodPost, "/api/admin/reindex", nil)
	if err != nil {
		exitErr("reindex", err)
	}
	printJSON(data)
}
