// Package main is the entrypoint for the tripartite CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SuperInstance/tripartite/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes, per the external interface contract: 0 success, 1 user error,
// 2 internal error, 3 remote unavailable, 4 budget exceeded.
const (
	ExitOK               = 0
	ExitUserError        = 1
	ExitInternalError    = 2
	ExitRemoteUnavailable = 3
	ExitBudgetExceeded    = 4
)

func main() {
	root := &cobra.Command{
		Use:   "tripartite",
		Short: "Local-first AI inference orchestrator with privacy-preserving cloud escalation",
		Long: `tripartite runs queries through a three-agent consensus (Intent, Logic,
Truth) against a local knowledge vault, escalating to a remote peer only when
local resources or capability fall short — and never without redacting
sensitive content first.

Quick Start:
  tripartite config show   Inspect effective configuration
  tripartite doctor        Check if everything is working
  tripartite ask "..."     Run one query through the router`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(versionCmd())
	root.AddCommand(askCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(cloudCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(guardCmd())
	root.AddCommand(mcpCmd())

	root.PersistentFlags().StringVar(&config.VaultOverride, "vault", "", "Vault name or path (overrides auto-detect)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", classifyError(err))
		os.Exit(exitCodeFor(err))
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tripartite version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tripartite %s\n", Version)
			return nil
		},
	}
}
