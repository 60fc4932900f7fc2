package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
)

func newSaveCmd(opts *globalOptions) *cobra.Command {
	var (
		id     string
		meta   string
		vector string
		embed  bool
	)

	cmd := &cobra.Command{
		Use:   "save <collection> <text>",
		Short: "Save a record; prints its id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.New().String()
			}
			return opts.withStore(cmd, func(ctx context.Context, cfg *config.Config, s memory.Store) error {
				var embedding []float32
				switch {
				case vector != "":
					if embedding, err = parseVector(vector); err != nil {
						return err
					}
				case embed:
					if embedding, err = mock.New(cfg.Embedder.Dimensions).Embed(ctx, args[1]); err != nil {
						return fmt.Errorf("embed text: %w", err)
					}
				}
				if !s.SaveInformation(ctx, args[0], id, args[1], metadata, embedding) {
					return fmt.Errorf("save %s in %q failed", id, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("saved"), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Record id (default: random UUID)")
	cmd.Flags().StringVar(&meta, "meta", "", "Metadata as a JSON object")
	cmd.Flags().StringVar(&vector, "vector", "", "Embedding as comma-separated floats")
	cmd.Flags().BoolVar(&embed, "embed", false, "Embed the text with the hashing embedder")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				rec, ok := s.GetInformation(ctx, args[0], args[1])
				if !ok {
					return fmt.Errorf("record %s not found in %q", args[1], args[0])
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		limit    int
		minScore float64
		embed    bool
	)

	cmd := &cobra.Command{
		Use:   "query <collection> <query>",
		Short: "Rank records by relevance to a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, cfg *config.Config, s memory.Store) error {
				var embedding []float32
				if embed {
					var err error
					if embedding, err = mock.New(cfg.Embedder.Dimensions).Embed(ctx, args[1]); err != nil {
						return fmt.Errorf("embed query: %w", err)
					}
				}
				printResults(cmd.OutOrStdout(), s.GetRelevant(ctx, args[0], args[1], limit, minScore, embedding))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results (0 for no cap)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum relevance")
	cmd.Flags().BoolVar(&embed, "embed", false, "Embed the query with the hashing embedder")
	return cmd
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		limit    int
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "search <collection> <vector>",
		Short: "Rank records by cosine similarity to a comma-separated vector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := parseVector(args[1])
			if err != nil {
				return err
			}
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				printResults(cmd.OutOrStdout(), s.SearchByVector(ctx, args[0], vec, limit, minScore))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results (0 for no cap)")
	cmd.Flags().Float64Var(&minScore, "min-score", -1, "Minimum similarity")
	return cmd
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <collection> <id>",
		Short: "Remove a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				if !s.RemoveInformation(ctx, args[0], args[1]) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("not found"), args[1])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("removed"), args[1])
				return nil
			})
		},
	}
}
