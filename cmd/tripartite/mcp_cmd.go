package main

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/SuperInstance/tripartite/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the Knowledge Vault's AI tool integration server (MCP, stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return userError(err)
			}
			defer a.Close()

			mcpserver.Version = Version
			if err := mcpserver.Serve(a.vault); err != nil {
				return internalError(err)
			}
			return nil
		},
	}
}
