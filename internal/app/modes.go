package app

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"fastgeoapi/pkg/logging"
)

// shutdownTimeout bounds draining in-flight requests.
const shutdownTimeout = 15 * time.Second

// runServer serves HTTP and, with MCP enabled, watches the OpenAPI document.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
//
// Readiness is reported to systemd once the listener is bound; outside
// systemd the notification is a no-op.
func runServer(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", services.Settings.Addr())
	if err != nil {
		logging.Error("App", err, "Failed to listen on %s", services.Settings.Addr())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return services.Server.Serve(listener)
	})

	if services.Watcher != nil {
		g.Go(func() error {
			// Tools stay as last loaded if the document cannot be watched.
			if err := services.Watcher.Run(gctx); err != nil {
				logging.Error("App", err, "OpenAPI document watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("App", "--- Shutting down ---")
		notify(daemon.SdNotifyStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if services.MCP != nil {
			if err := services.MCP.Shutdown(shutdownCtx); err != nil {
				logging.Warn("App", "MCP sessions did not close cleanly: %v", err)
			}
		}
		return services.Server.Shutdown(shutdownCtx)
	})

	notify(daemon.SdNotifyReady)
	logging.Info("App", "Serving. Press Ctrl+C to stop.")
	return g.Wait()
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("App", "systemd notification failed: %v", err)
		return
	}
	if sent {
		logging.Debug("App", "notified systemd: %s", state)
	}
}
