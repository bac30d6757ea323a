package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/devicewatch"
)

func main() {
	// a small office: two routers, a printer and a power box
	store := devicewatch.NewMemoryStore(
		devicewatch.Device{ID: 1, Address: "10.0.0.1", Name: "Core router", Type: devicewatch.TypeRouter, Sector: "TI"},
		devicewatch.Device{ID: 2, Address: "10.0.0.2", Name: "Guest router", Type: devicewatch.TypeRouter, Sector: "Recepção"},
		devicewatch.Device{ID: 3, Address: "10.0.1.10", Name: "Finance printer", Type: devicewatch.TypePrinter, Sector: "Financeiro"},
		devicewatch.Device{ID: 4, Address: "10.0.2.5", Name: "Front desk box", Type: devicewatch.TypeBox, Sector: "Recepção"},
	)

	dw, err := devicewatch.New(
		devicewatch.WithStore(store),
		devicewatch.WithProber(newMockNetwork()),
		devicewatch.WithSweepInterval(5*time.Second),
		devicewatch.WithConcurrency(4),
		devicewatch.WithJWTSecret("demo"),
		devicewatch.WithStatusCallback(func(ev devicewatch.StatusChangeEvent) {
			slog.Info("status change", "device_id", ev.DeviceID, "status", ev.Status.String())
		}),
	)
	if err != nil {
		slog.Error("failed to create devicewatch", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  devicewatch demo")
	fmt.Println()
	fmt.Println("  4 simulated devices flip between up and down every 20-60s.")
	fmt.Println()
	fmt.Println("  Get a token:")
	fmt.Println(`    curl -s -XPOST localhost:3000/api/auth/register -d '{"username":"demo","password":"demo"}'`)
	fmt.Println("  Stream changes:")
	fmt.Println("    curl -N 'localhost:3000/api/events?token=<token>'")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dw.Start(ctx); err != nil {
		slog.Error("devicewatch error", "error", err)
		os.Exit(1)
	}
}
