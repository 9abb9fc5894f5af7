package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dgnsrekt/tabaudio/internal/popup"
	"github.com/spf13/cobra"
)

var popupCmd = &cobra.Command{
	Use:   "popup",
	Short: "Interactive list of audible tabs with playback controls",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The TUI owns the terminal, so logs go to the file only.
		s, err := startStack(ctx, nil)
		if err != nil {
			return err
		}
		defer s.close()

		p := &popup.Popup{Controller: s.reconciler, TickInterval: cfg.PopupTickInterval}
		return p.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(popupCmd)
}
