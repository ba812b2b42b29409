package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SuperInstance/tripartite/internal/cli"
	"github.com/SuperInstance/tripartite/internal/config"
	"github.com/SuperInstance/tripartite/internal/store"
	"github.com/SuperInstance/tripartite/internal/tunnel"
)

func doctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system health and diagnose issues",
		Long:  "Runs health checks on the local vault, the consensus engine's model connections, and the remote escalation peer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// DoctorResult mirrors a single health check's outcome.
type DoctorResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "skip", "fail"
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// DoctorReport is the complete health check report.
type DoctorReport struct {
	Checks  []DoctorResult `json:"checks"`
	Summary struct {
		Total   int `json:"total"`
		Passed  int `json:"passed"`
		Skipped int `json:"skipped"`
		Failed  int `json:"failed"`
	} `json:"summary"`
}

// sanitizeErrorForJSON keeps only the text after the last colon when the
// error text contains a path separator, so JSON doctor output does not leak
// vault locations. Text without a path separator is returned unchanged.
func sanitizeErrorForJSON(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "/") || strings.Contains(msg, "\\") {
		if idx := strings.LastIndex(msg, ":"); idx != -1 {
			return strings.TrimSpace(msg[idx+1:])
		}
		return "operation failed"
	}
	return msg
}

func runDoctor(jsonOut bool) error {
	passed := 0
	failed := 0
	skipped := 0
	var results []DoctorResult

	check := func(name string, hint string, fn func() (string, error)) {
		detail, err := fn()
		if err != nil {
			if jsonOut {
				results = append(results, DoctorResult{Name: name, Status: "fail", Message: sanitizeErrorForJSON(err), Hint: hint})
			} else {
				fmt.Printf("  %s✗%s %s: %s\n", cli.Red, cli.Reset, name, err)
				if hint != "" {
					fmt.Printf("    → %s\n", hint)
				}
			}
			failed++
			return
		}
		if jsonOut {
			results = append(results, DoctorResult{Name: name, Status: "pass", Message: detail})
		} else if detail != "" {
			fmt.Printf("  %s✓%s %s (%s)\n", cli.Green, cli.Reset, name, detail)
		} else {
			fmt.Printf("  %s✓%s %s\n", cli.Green, cli.Reset, name)
		}
		passed++
	}

	skip := func(name string, reason string) {
		if jsonOut {
			results = append(results, DoctorResult{Name: name, Status: "skip", Message: reason})
		} else {
			fmt.Printf("  %s-%s %s: %s\n", cli.Dim, cli.Reset, name, reason)
		}
		skipped++
	}

	if !jsonOut {
		cli.Header("tripartite health check")
		fmt.Println()
	}

	check("Vault path", "run 'tripartite config path' or set VAULT_PATH", func() (string, error) {
		vp := config.VaultPath()
		if vp == "" {
			return "", config.ErrNoVault
		}
		return cli.ShortenHome(vp), nil
	})

	check("Database", "the vault's SQLite database could not be opened", func() (string, error) {
		db, err := store.OpenPath(config.DBPath())
		if err != nil {
			return "", fmt.Errorf("%w: %v", config.ErrNoDatabase, err)
		}
		defer db.Close()
		stats, err := db.Stats()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s documents, %s chunks", cli.FormatNumber(stats.DocumentCount), cli.FormatNumber(stats.ChunkCount)), nil
	})

	check("SQLite integrity", "run 'knowledge add' over the vault again to rebuild", func() (string, error) {
		db, err := store.OpenPath(config.DBPath())
		if err != nil {
			return "", err
		}
		defer db.Close()
		return "", db.IntegrityCheck()
	})

	ollamaAvailable := false
	check("Ollama connection", "make sure Ollama is running locally, or switch to a configured cloud embedding provider", func() (string, error) {
		provider, err := newEmbedProvider()
		if err != nil {
			return "", fmt.Errorf("provider unavailable: %v", err)
		}
		if _, err := provider.GetQueryEmbedding("doctor check"); err != nil {
			return "", fmt.Errorf("not reachable")
		}
		ollamaAvailable = true
		return fmt.Sprintf("%s (%d dims)", provider.Name(), provider.Dimensions()), nil
	})

	if ollamaAvailable {
		check("Embedding config", "change the model only with 'config set-embedding-model', then re-add documents", func() (string, error) {
			db, err := store.OpenPath(config.DBPath())
			if err != nil {
				return "", err
			}
			defer db.Close()
			provider, err := newEmbedProvider()
			if err != nil {
				return "", err
			}
			if mismatchErr := db.CheckEmbeddingMeta(provider.Name(), provider.Model(), provider.Dimensions()); mismatchErr != nil {
				return "", mismatchErr
			}
			return "consistent", nil
		})
	} else {
		skip("Embedding config", "skipped — Ollama connection check failed")
	}

	check("Data stays local", "Ollama should run on this machine, not a remote server", func() (string, error) {
		_, err := config.OllamaURL()
		return "", err
	})

	check("Privacy Proxy", "sessions that fail cleanup leak Token Vault rows", func() (string, error) {
		db, err := store.OpenPath(config.DBPath())
		if err != nil {
			return "", err
		}
		defer db.Close()
		if err := db.CleanupSession("__doctor_probe__"); err != nil {
			return "", err
		}
		return "", nil
	})

	check("Config file", "check .tripartite/config.toml for syntax errors", func() (string, error) {
		_, err := config.LoadConfig()
		return "", err
	})

	check("Vault registry", "register vaults with config overrides as needed", func() (string, error) {
		reg := config.LoadRegistry()
		if len(reg.Vaults) == 0 {
			return "no vaults registered (optional)", nil
		}
		return fmt.Sprintf("%d vault(s) registered", len(reg.Vaults)), nil
	})

	a, appErr := openApp()
	if appErr == nil {
		defer a.Close()
		if a.tunnel == nil {
			skip("Remote peer", "no tunnel.addr configured — running local-only")
		} else {
			check("Remote peer", "the configured tunnel.addr is unreachable; local fallback is used until it returns", func() (string, error) {
				ctx, cancel := context.WithTimeout(context.Background(), a.tunnel.Config.ConnectTimeout)
				defer cancel()
				if err := a.tunnel.Connect(ctx); err != nil {
					return "", err
				}
				snap := a.tunnel.State()
				if snap.State != tunnel.StateConnected {
					return "", fmt.Errorf("state is %s", snap.State)
				}
				return fmt.Sprintf("connected, %dms", snap.LatencyMS), nil
			})
		}

		check("Usage ledger", "cost accounting may be stale", func() (string, error) {
			summary, err := a.ledger.Summary()
			if err != nil {
				return "", err
			}
			if summary.PendingFlush > 0 {
				return fmt.Sprintf("%d event(s) pending flush", summary.PendingFlush), nil
			}
			return "flushed", nil
		})
	} else {
		skip("Remote peer", "skipped — app could not be opened")
		skip("Usage ledger", "skipped — app could not be opened")
	}

	if jsonOut {
		report := DoctorReport{Checks: results}
		report.Summary.Total = len(results)
		report.Summary.Passed = passed
		report.Summary.Skipped = skipped
		report.Summary.Failed = failed
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		if failed > 0 {
			return userError(fmt.Errorf("%d check(s) failed", failed))
		}
		return nil
	}

	summary := fmt.Sprintf("%d passed, %d failed", passed, failed)
	if skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", skipped)
	}
	cli.Box([]string{summary})
	cli.Footer()

	if failed > 0 {
		return userError(fmt.Errorf("%d check(s) failed", failed))
	}
	return nil
}
