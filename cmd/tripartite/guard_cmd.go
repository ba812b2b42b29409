package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SuperInstance/tripartite/internal/cli"
	"github.com/SuperInstance/tripartite/internal/config"
	"github.com/SuperInstance/tripartite/internal/guard"
)

func guardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Configure the redaction patterns the Privacy Proxy enforces",
	}
	cmd.AddCommand(guardStatusCmd())
	cmd.AddCommand(guardSetCmd())
	cmd.AddCommand(guardScanCmd())
	return cmd
}

func guardStatusCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which redaction patterns are currently enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuardStatus(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runGuardStatus(jsonOut bool) error {
	gc := guard.LoadGuardConfig()
	if jsonOut {
		data, err := json.MarshalIndent(gc, "", "  ")
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		return nil
	}

	if !gc.Enabled {
		fmt.Printf("%sguard disabled%s — all text is routed without redaction screening\n", cli.Red, cli.Reset)
		return nil
	}

	lines := []string{
		fmt.Sprintf("soft mode: %s", gc.SoftMode),
		fmt.Sprintf("blocklist: %v   path filter: %v", gc.Blocklist.Enabled, gc.PathFilter.Enabled),
	}
	pats := []struct{ on bool; label string }{
		{gc.PII.Patterns.Email, "email"}, {gc.PII.Patterns.Phone, "phone"}, {gc.PII.Patterns.SSN, "ssn"},
		{gc.PII.Patterns.LocalPath, "local path"}, {gc.PII.Patterns.APIKey, "api key"},
		{gc.PII.Patterns.AWSKey, "aws key"}, {gc.PII.Patterns.PrivateKey, "private key"},
		{gc.PII.Patterns.CreditCard, "credit card"}, {gc.PII.Patterns.IPAddress, "ip address"},
		{gc.PII.Patterns.URLWithToken, "url token"},
	}
	for _, p := range pats {
		state := fmt.Sprintf("%s✗%s", cli.Red, cli.Reset)
		if p.on {
			state = fmt.Sprintf("%s✓%s", cli.Green, cli.Reset)
		}
		lines = append(lines, fmt.Sprintf("%s %s", state, p.label))
	}
	cli.Box(lines)
	return nil
}

func guardSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a guard setting (e.g. 'guard set email off', 'guard set soft-mode warn')",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuardSet(args[0], args[1])
		},
	}
	return cmd
}

func runGuardSet(key, value string) error {
	gc := guard.LoadGuardConfig()
	if err := gc.SetKey(key, value); err != nil {
		return userError(err)
	}
	if err := guard.SaveGuardConfig(gc); err != nil {
		return internalError(err)
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func guardScanCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "scan <text>",
		Short: "Preview what the Privacy Proxy would redact from text, without routing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuardScan(args[0], jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runGuardScan(text string, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()

	previews := a.proxy.RedactPreview(text)

	if vp := config.VaultPath(); vp != "" {
		_ = guard.AppendAudit(vp, guard.AuditEntry{
			Action:     "scan",
			Passed:     len(previews) == 0,
			Violations: len(previews),
		})
	}

	if jsonOut {
		data, err := json.Marshal(previews)
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		return nil
	}
	if len(previews) == 0 {
		fmt.Println("no redactable content found")
		return nil
	}
	for _, p := range previews {
		fmt.Printf("  %s[%s]%s %q\n", cli.Yellow, p.Category, cli.Reset, p.Text)
	}
	return nil
}
