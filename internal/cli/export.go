package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export <lead-id>",
		Short: "Export a lead's canonical summary as a PDF",
		Args:  cobra.ExactArgs(1),
		Run:   runExport,
	}
	cmd.Flags().StringP("out", "o", "", "Output file (default: <lead-id>.pdf)")
	cmd.Flags().Bool("upload", false, "Upload to object storage and print the download URL")
	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	leadID := args[0]
	upload, _ := cmd.Flags().GetBool("upload")
	out, _ := cmd.Flags().GetString("out")

	path := "/api/leads/" + leadID + "/export?format=pdf"
	if upload {
		path += "&upload=true"
	}
	data, contentType, err := apiRequest(cmd.Context(), http.MethodGet, path, nil)
	if err != nil {
		exitErr("export", err)
	}

	if upload || contentType != "application/pdf" {
		printJSON(data)
		return
	}

	if out == "" {
		out = leadID + ".pdf"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		exitErr("write pdf", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
}
