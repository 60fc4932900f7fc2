// Package cli implements the nim-memory command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/becomeliminal/nim-memory/internal/cli.version=1.2.3"
	version = "0.1.0"
	logo    = "\n" +
		"        _                                                \n" +
		"  _ __ (_)_ __ ___        _ __ ___   ___ _ __ ___   ___  \n" +
		" | '_ \\| | '_ ` _ \\ _____| '_ ` _ \\ / _ \\ '_ ` _ \\ / _ \\ \n" +
		" | | | | | | | | | |_____| | | | | |  __/ | | | | | (_) |\n" +
		" |_| |_|_|_| |_| |_|     |_| |_| |_|\\___|_| |_| |_|\\___/ \n"
)

// globalOptions override configuration loaded from the environment.
type globalOptions struct {
	backend   string
	redisAddr string
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "nim-memory",
		Short:        "nim-memory - agent memory store",
		Long:         color.CyanString(logo) + "\nStore, query and serve agent memories.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "Backend to use (inmemory or redis); overrides NIM_MEMORY_BACKEND")
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address; overrides NIM_MEMORY_REDIS_ADDR")

	root.AddCommand(
		newServeCmd(opts),
		newSaveCmd(opts),
		newGetCmd(opts),
		newQueryCmd(opts),
		newSearchCmd(opts),
		newRemoveCmd(opts),
		newCollectionsCmd(opts),
		newCreateCmd(opts),
		newDropCmd(opts),
		newCountCmd(opts),
		newInfoCmd(opts),
	)
	return root
}

// loadConfig reads the environment and applies flag overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.redisAddr != "" {
		cfg.Redis.Addr = o.redisAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withStore opens the configured backend for the duration of fn.
func (o *globalOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, s memory.Store) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger, err := store.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, cfg, s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseMetadata decodes a JSON object flag. Empty input means no metadata.
func parseMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return meta, nil
}

// parseVector parses comma-separated floats such as "0.1, 0.2,0.3".
func parseVector(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		vec = append(vec, float32(f))
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("vector is empty")
	}
	return vec, nil
}

func printResults(w io.Writer, results []memory.ResultItem) {
	if len(results) == 0 {
		fmt.Fprintln(w, color.YellowString("no results"))
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s %s %s\n", i+1, color.GreenString("[%.4f]", r.Relevance), color.CyanString(r.ID), r.Text)
	}
}
