package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brandon/outlook-email/internal/mcp"
	"github.com/brandon/outlook-email/internal/tools"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the email cache over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			// stdout carries protocol frames
			a.logger.SetOutput(os.Stderr)
			a.logger.SetFormatter(&logrus.JSONFormatter{})

			registry := tools.NewRegistry(a.config, a.manager, a.logger)
			server := mcp.NewServer(registry, flags.version, a.logger)

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}()

			select {
			case <-ctx.Done():
				a.logger.Info("Received shutdown signal")
				return nil
			case err := <-errChan:
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("server error: %w", err)
				}
				a.logger.Info("Shutting down MCP server")
				return nil
			}
		}),
	}
}

// interruptContext is cancelled on SIGINT or SIGTERM
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newVersionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "outlook-email version %s\n", flags.version)
			return nil
		},
	}
}
