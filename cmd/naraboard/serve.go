package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/naraboard/internal/api"
	"github.com/kalambet/naraboard/internal/ingest"
	"github.com/kalambet/naraboard/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API, the task worker and the scheduler (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		noSchedule, _ := cmd.Flags().GetBool("no-schedule")
		return runServer(withMCP, noSchedule)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the read-only MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serveMCP(ctx, a)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdin/stdout")
	serveCmd.Flags().Bool("no-schedule", false, "do not enqueue periodic sync and cleanup tasks")
}

func runServer(withMCP, noSchedule bool) error {
	fmt.Fprintln(os.Stderr, versionLine())

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Upstream.ServiceKey == "" {
		printWarning("no upstream service key configured; sync tasks will fail until one is set")
	}
	if n, err := a.store.RequeueStaleTasks(); err != nil {
		slog.Warn("requeueing stale tasks", "error", err)
	} else if n > 0 {
		slog.Info("requeued tasks left running by a previous process", "count", n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(a.cfg.Server.Bind, fmt.Sprint(a.cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(a.handlerDeps()),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("naraboard listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	worker := ingest.NewWorker(a.store, a.ingest, a.cleanup, time.Second)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if !noSchedule {
		sched := scheduler.New(a.store, scheduler.Options{
			SyncInterval:    a.cfg.Schedule.SyncInterval,
			CleanupInterval: a.cfg.Schedule.CleanupInterval,
			Sync:            a.syncDefaults(),
		})
		g.Go(func() error {
			return sched.Start(gctx)
		})
	}

	if withMCP {
		g.Go(func() error {
			return serveMCP(gctx, a)
		})
	}

	return g.Wait()
}

func serveMCP(ctx context.Context, a *app) error {
	stdioSrv := server.NewStdioServer(api.NewMCPServer(a.mcpDeps()))
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
