package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SuperInstance/tripartite/internal/cli"
	"github.com/SuperInstance/tripartite/internal/router"
)

func askCmd() *cobra.Command {
	var (
		forceLocal     bool
		forceRemote    bool
		stream         bool
		showRedactions bool
		jsonOut        bool
	)
	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Run one query through the escalation router",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(args[0], forceLocal, forceRemote, stream, showRedactions, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&forceLocal, "local", false, "Never escalate to the remote peer")
	cmd.Flags().BoolVar(&forceRemote, "remote", false, "Always escalate to the remote peer")
	cmd.Flags().BoolVar(&stream, "stream", false, "Accepted but has no effect: the response is always printed once, after it is complete")
	cmd.Flags().BoolVar(&showRedactions, "show-redactions", false, "Print what the Privacy Proxy would redact before showing the response")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

type askResult struct {
	Response string `json:"response"`
}

func runAsk(query string, forceLocal, forceRemote, stream, showRedactions, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()

	sessionID := uuid.NewString()

	if showRedactions {
		previews := a.proxy.RedactPreview(query)
		if jsonOut {
			data, _ := json.Marshal(previews)
			fmt.Println(string(data))
		} else if len(previews) == 0 {
			fmt.Println("no redactable content found")
		} else {
			for _, p := range previews {
				fmt.Printf("  %s[%s]%s %q\n", cli.Yellow, p.Category, cli.Reset, p.Text)
			}
		}
	}

	if forceLocal && forceRemote {
		return userError(fmt.Errorf("--local and --remote are mutually exclusive"))
	}

	req := router.Request{
		Query:              query,
		SessionID:          sessionID,
		EstimatedTokens:    0,
		LocalContextWindow: 1 << 30,
		ForceRemote:        forceRemote,
	}
	if forceLocal {
		a.router.Remote = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout())
	defer cancel()

	text, err := a.router.Route(ctx, req)
	if err != nil {
		if cleanupErr := a.proxy.Cleanup(sessionID); cleanupErr != nil {
			return classifyError(fmt.Errorf("%w (cleanup also failed: %v)", err, cleanupErr))
		}
		return classifyError(err)
	}
	defer a.proxy.Cleanup(sessionID)

	_ = stream // no incremental delivery path yet — see Router.Route's buffered return

	if jsonOut {
		data, err := json.Marshal(askResult{Response: text})
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(text)
	return nil
}
