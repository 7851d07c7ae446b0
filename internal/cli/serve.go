package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the knowledge graph to MCP clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			switch a.cfg.Server.Transport {
			case "http":
				return a.serveHTTP(ctx, c)
			default:
				a.logger.Info("zonegraph MCP server starting", "transport", "stdio", "version", server.Version)
				srv := server.New(c, a.logger)
				if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}
	cmd.Flags().String("transport", "stdio", "transport mode: stdio or http")
	cmd.Flags().Int("port", 8081, "HTTP port (only used with --transport http)")
	_ = a.v.BindPFlag("server.transport", cmd.Flags().Lookup("transport"))
	_ = a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func (a *app) serveHTTP(ctx context.Context, c *graph.Client) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(c, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("zonegraph MCP server listening", "addr", srv.Addr, "version", server.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
