package cli

import (
	"net/http"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "normalize <lead-id>",
		Short: "Run one canonical pass for a lead",
		Args:  cobra.ExactArgs(1),
		Run:   runNormalize,
	}
	RootCmd.AddCommand(cmd)
}

func runNormalize(cmd *cobra.Command, args []string) {
	data, _, err := apiRequest(cmd.Context(), http.MethodPost, "/api/leads/"+args[0]+"/normalize", nil)
	if err != nil {
		exitErr("normalize", err)
	}
	printJSON(data)
}
