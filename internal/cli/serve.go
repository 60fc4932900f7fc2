package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store"
	"github.com/becomeliminal/nim-memory/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, cfg *config.Config, s memory.Store) error {
				if addr == "" {
					addr = cfg.Server.Addr
				}
				logger, err := store.NewLogger(cfg, cmd.ErrOrStderr())
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				fmt.Fprintf(cmd.OutOrStdout(), "%s backend=%s addr=%s\n", color.GreenString("serving"), cfg.Backend, addr)
				return server.New(s, server.WithLogger(logger)).ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides NIM_MEMORY_SERVER_ADDR")
	return cmd
}
