package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
)

func newCollectionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				for _, name := range s.GetCollections(ctx) {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var meta string

	cmd := &cobra.Command{
		Use:   "create <collection>",
		Short: "Create an empty collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				if !s.CreateCollection(ctx, args[0], metadata) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("exists"), args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("created"), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&meta, "meta", "", "Collection metadata as a JSON object")
	return cmd
}

func newDropCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <collection>",
		Short: "Remove a collection and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				if !s.RemoveCollection(ctx, args[0]) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("not found"), args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("dropped"), args[0])
				return nil
			})
		},
	}
}

func newCountCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count <collection>",
		Short: "Print the number of records in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				fmt.Fprintln(cmd.OutOrStdout(), s.GetInformationCount(ctx, args[0]))
				return nil
			})
		},
	}
}

func newInfoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <collection>",
		Short: "Print collection details as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, _ *config.Config, s memory.Store) error {
				info, ok := s.GetCollectionInfo(ctx, args[0])
				if !ok {
					return fmt.Errorf("collection %q not found", args[0])
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}
}
