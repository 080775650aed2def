package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ramonfullstack/automation-scripts/internal/capture"
	"github.com/ramonfullstack/automation-scripts/internal/config"
	"github.com/ramonfullstack/automation-scripts/internal/secrets"
)

func newCapturesCmd() *cobra.Command {
	var path string

	capturesCmd := &cobra.Command{
		Use:   "captures",
		Short: "List the tenant/token pairs stored in the capture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.Get().Capture.OutputFile
			}
			// A missing file reads as zero pairs.
			pairs, err := capture.ReadFile(path)
			if err != nil {
				return err
			}
			writeCaptures(cmd.OutOrStdout(), path, pairs)
			return nil
		},
	}

	capturesCmd.Flags().StringVarP(&path, "file", "f", "", "capture file (defaults to capture.output_file)")
	return capturesCmd
}

// writeCaptures prints each pair with the token masked and fingerprinted.
func writeCaptures(w io.Writer, path string, pairs []capture.Pair) {
	fmt.Fprintf(w, "%d pair(s) in %s\n", len(pairs), path)
	for i, p := range pairs {
		header := "Bearer " + p.Token
		masked, _ := secrets.MaskBearerHeader(header)
		fmt.Fprintf(w, "%3d. tenant=%s token=%s (hash:%s)\n", i+1, p.TenantID, masked, secrets.Fingerprint(header))
	}
}
