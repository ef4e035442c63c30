package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"

	"versusmatch/internal/logger"
	"versusmatch/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// NewApp mounts the relay routes. A nil registry leaves /metrics unmounted.
func NewApp(hub *Hub, registry *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "versus-relay",
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(registry)))
	}

	app.Use("/ws", upgradeOnly)
	app.Get("/ws", websocket.New(hub.HandleWebSocket))
	return app
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve runs app on ln until ctx is cancelled.
func Serve(ctx context.Context, app *fiber.App, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listener(ln)
	}()
	logger.Info("voice relay listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
