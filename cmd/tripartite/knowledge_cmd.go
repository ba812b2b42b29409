package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SuperInstance/tripartite/internal/cli"
	"github.com/SuperInstance/tripartite/internal/config"
	"github.com/SuperInstance/tripartite/internal/knowledge"
)

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the local Knowledge Vault",
	}
	cmd.AddCommand(knowledgeAddCmd())
	cmd.AddCommand(knowledgeSearchCmd())
	cmd.AddCommand(knowledgeStatsCmd())
	cmd.AddCommand(knowledgeWatchCmd())
	return cmd
}

func knowledgeAddCmd() *cobra.Command {
	var (
		kindFlag     string
		chunkFlag    string
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a document or directory of documents to the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKnowledgeAdd(args[0], kindFlag, chunkFlag, showProgress)
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Document kind override: code|md|txt (default: inferred from extension)")
	cmd.Flags().StringVar(&chunkFlag, "chunk", "paragraph", "Chunking strategy: paragraph|sentence|fixed")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Print a running count while ingesting a directory")
	return cmd
}

func chunkStrategy(flag string) (knowledge.Strategy, error) {
	switch flag {
	case "paragraph", "":
		return knowledge.StrategyParagraph, nil
	case "sentence":
		return knowledge.StrategySentence, nil
	case "fixed":
		return knowledge.StrategyFixedToken, nil
	default:
		return "", fmt.Errorf("unknown --chunk strategy %q (want paragraph|sentence|fixed)", flag)
	}
}

func runKnowledgeAdd(path, kindOverride, chunkFlag string, showProgress bool) error {
	strategy, err := chunkStrategy(chunkFlag)
	if err != nil {
		return userError(err)
	}

	embedProvider, err := newEmbedProvider()
	if err != nil {
		return internalError(fmt.Errorf("embedding provider: %w", err))
	}

	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()
	a.vault = knowledge.NewVault(a.db, embedProvider, strategy)

	info, err := os.Stat(path)
	if err != nil {
		return userError(err)
	}

	var paths []string
	if info.IsDir() {
		filepath.Walk(path, func(p string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil || fi == nil {
				return nil
			}
			if fi.IsDir() {
				if config.SkipDirs[filepath.Base(p)] {
					return filepath.SkipDir
				}
				return nil
			}
			paths = append(paths, p)
			return nil
		})
	} else {
		paths = []string{path}
	}

	var added int
	for _, p := range paths {
		content, kind, _, err := knowledge.ReadDocument(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", p, err)
			continue
		}
		if kindOverride != "" {
			kind = kindOverride
		}
		if _, err := a.vault.AddDocument(p, content, kind); err != nil {
			return classifyError(fmt.Errorf("add %s: %w", p, err))
		}
		added++
		if showProgress && len(paths) > 1 {
			fmt.Printf("\r%d/%d", added, len(paths))
		}
	}
	if showProgress && len(paths) > 1 {
		fmt.Println()
	}
	fmt.Printf("added %d document(s) from %s\n", added, path)
	return nil
}

func knowledgeSearchCmd() *cobra.Command {
	var (
		top     int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vault, printing ranked results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKnowledgeSearch(args[0], top, jsonOut)
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "Number of results to return")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runKnowledgeSearch(query string, top int, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()

	results, err := a.vault.Search(query, top)
	if err != nil {
		return classifyError(err)
	}

	if jsonOut {
		data, err := json.Marshal(results)
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		return nil
	}

	for i, r := range results {
		fmt.Printf("%s%d.%s %s#%d %s(score %.3f)%s\n  %s\n",
			cli.Bold, i+1, cli.Reset, r.DocumentID, r.ChunkIndex, cli.Dim, r.Score, cli.Reset, r.Content)
	}
	return nil
}

func knowledgeStatsCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print document_count, chunk_count, byte_size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKnowledgeStats(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runKnowledgeStats(jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()

	stats, err := a.vault.Stats()
	if err != nil {
		return classifyError(err)
	}

	if jsonOut {
		data, err := json.Marshal(stats)
		if err != nil {
			return internalError(err)
		}
		fmt.Println(string(data))
		return nil
	}
	cli.Box([]string{
		fmt.Sprintf("documents  %s", cli.FormatNumber(stats.DocumentCount)),
		fmt.Sprintf("chunks     %s", cli.FormatNumber(stats.ChunkCount)),
		fmt.Sprintf("bytes      %s", cli.FormatNumber(int(stats.ByteSize))),
	})
	return nil
}

func knowledgeWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the vault for document changes and re-embed on write",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKnowledgeWatch()
		},
	}
	return cmd
}

func runKnowledgeWatch() error {
	a, err := openApp()
	if err != nil {
		return userError(err)
	}
	defer a.Close()

	vp := config.VaultPath()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stop)
	}()

	fmt.Printf("watching %s (ctrl-c to stop)\n", vp)
	if err := a.vault.Watch(vp, config.SkipDirs, stop); err != nil {
		return internalError(err)
	}
	return nil
}
