package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "contextpack <lead-id>",
		Short: "Print the prompt context pack for a lead",
		Args:  cobra.ExactArgs(1),
		Run:   runContextPack,
	}
	RootCmd.AddCommand(cmd)
}

func runContextPack(cmd *cobra.Command, args []string) {
	data, _, err := apiRequest(cmd.Context(), http.MethodGet, "/api/leads/"+args[0]+"/context-pack", nil)
	if err != nil {
		exitErr("contextpack", err)
	}

	var payload struct {
		ContextPack string `json:"contextPack"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		exitErr("decode response", err)
	}
	fmt.Println(payload.ContextPack)
}
