package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dgnsrekt/tabaudio/internal/relay"
	"github.com/spf13/cobra"
)

var flagServer string

var relayCmd = &cobra.Command{
	Use:   "relay [action]",
	Short: "Send a relay message to a running server and print the reply",
	Long: `relay posts {"action": <action>} to the /api/v1/relay endpoint of a running
"tabaudio serve" and prints the JSON reply. The action defaults to queryTabs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := relay.Message{Action: relay.ActionQueryTabs}
		if len(args) == 1 {
			msg.Action = args[0]
		}
		server := flagServer
		if server == "" {
			server = "http://" + cfg.BindAddr
		}

		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, server+"/api/v1/relay", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("relay request: %w", err)
		}
		defer resp.Body.Close()
		out, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("relay request: %s: %s", resp.Status, bytes.TrimSpace(out))
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, out, "", "  "); err != nil {
			_, err = os.Stdout.Write(out)
			return err
		}
		pretty.WriteByte('\n')
		_, err = pretty.WriteTo(os.Stdout)
		return err
	},
}

func init() {
	relayCmd.Flags().StringVar(&flagServer, "server", "", "server base URL (default http://<TABAUDIO_BIND_ADDR>)")
	rootCmd.AddCommand(relayCmd)
}
