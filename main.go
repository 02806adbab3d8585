package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"focuswatch/internal/app"
	"focuswatch/internal/config"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/types"
)

// logNotifier delivers alerts to the structured log. Stands in for a
// platform notification backend on targets that lack one.
type logNotifier struct {
	logger logging.Logger
}

func (n *logNotifier) Send(title, body string, intensity types.Intensity) error {
	n.logger.Info("ALERT",
		"title", title,
		"body", body,
		"intensity", intensity.String())
	return nil
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "focuswatch: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewDefaultLogger()

	application, err := app.New(cfg, &logNotifier{logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "focuswatch: startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Startup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "focuswatch: startup failed: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	stop()

	application.Shutdown(context.Background())
}
