package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/edgefleet/rollout-agent/cmd/rollout-agent/app/options"
)

// remoteStatus mirrors the status server's JSON response shape.
type remoteStatus struct {
	Outcome      string `json:"outcome"`
	ActionID     int32  `json:"actionId"`
	BytesWritten int64  `json:"bytesWritten"`
	DurationMS   int64  `json:"durationMs"`
	PollInterval string `json:"pollInterval"`
	Error        string `json:"error,omitempty"`
}

// newStatusCommand builds the "status" subcommand, which queries a
// running agent's status server and renders the last cycle as a table.
func newStatusCommand(opts *options.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last probe cycle reported by a running agent's status server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + opts.StatusServer.Addr + "/status")
			if err != nil {
				return fmt.Errorf("status: reach status server: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNoContent {
				fmt.Fprintln(cmd.OutOrStdout(), "no cycle has completed yet")
				return nil
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status: server returned %s", resp.Status)
			}

			var rs remoteStatus
			if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
				return fmt.Errorf("status: decode response: %w", err)
			}

			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("OUTCOME", "ACTION ID", "BYTES WRITTEN", "DURATION (ms)", "NEXT POLL", "ERROR")
			table.AddRow(rs.Outcome, rs.ActionID, rs.BytesWritten, rs.DurationMS, rs.PollInterval, rs.Error)

			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
