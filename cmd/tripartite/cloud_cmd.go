package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SuperInstance/tripartite/internal/cli"
	"github.com/SuperInstance/tripartite/internal/tunnel"
)

func cloudCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Inspect the remote escalation peer and usage ledger",
	}
	cmd.AddCommand(cloudStatusCmd())
	cmd.AddCommand(cloudBalanceCmd())
	return cmd
}

func cloudStatusCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the Tunnel's current connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCloudStatus(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runCloudStatus(jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()

	if a.tunnel == nil {
		if jsonOut {
			data, _ := json.Marshal(map[string]string{"state": string(tunnel.StateDisconnected)})
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("%s%s%s no remote peer configured — local-only\n", cli.StatusColor(false, true), "●", cli.Reset)
		return nil
	}

	snap := a.tunnel.State()
	if jsonOut {
		data, err := json.Marshal(map[string]interface{}{
			"state":      snap.State,
			"since":      snap.Since,
			"latency_ms": snap.LatencyMS,
			"attempt":    snap.Attempt,
		})
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		return nil
	}

	ok := snap.State == tunnel.StateConnected
	warn := snap.State == tunnel.StateConnecting || snap.State == tunnel.StateReconnecting
	fmt.Printf("%s%s%s %s (since %s)\n", cli.StatusColor(ok, warn), "●", cli.Reset, snap.State, snap.Since.Format("15:04:05"))
	if snap.State == tunnel.StateConnected {
		fmt.Printf("  latency %dms\n", snap.LatencyMS)
	}
	if snap.LastError != nil {
		fmt.Printf("  %slast error: %v%s\n", cli.Dim, snap.LastError, cli.Reset)
	}
	return nil
}

func cloudBalanceCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print aggregate usage-ledger totals (tokens, cost, pending flush)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCloudBalance(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runCloudBalance(jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()

	summary, err := a.ledger.Summary()
	if err != nil {
		return internalError(err)
	}

	if jsonOut {
		data, err := json.Marshal(summary)
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		return nil
	}

	cli.Box([]string{
		fmt.Sprintf("events        %s", cli.FormatNumber(summary.TotalEvents)),
		fmt.Sprintf("tokens in     %s", cli.FormatNumber(summary.TotalTokensIn)),
		fmt.Sprintf("tokens out    %s", cli.FormatNumber(summary.TotalTokensOut)),
		fmt.Sprintf("cost          $%.4f", summary.TotalCost),
		fmt.Sprintf("pending flush %s", cli.FormatNumber(summary.PendingFlush)),
	})
	return nil
}
