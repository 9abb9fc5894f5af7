package main

import (
	"encoding/json"
	"os"

	"github.com/dgnsrekt/tabaudio/internal/media"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the audible tabs as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := startStack(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer s.close()

		tabs, err := s.directory.ListAudibleTabs(cmd.Context())
		if err != nil {
			return err
		}
		if tabs == nil {
			tabs = []media.TabHandle{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tabs)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
