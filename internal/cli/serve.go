package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sttstudio/internal/config"
	"sttstudio/internal/svc"
	"sttstudio/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the studio in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForeground()
	},
}

func runForeground() error {
	cfg := config.Load()
	logger.Init(os.Getenv("LOG_LEVEL"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	studio := svc.New(cfg)
	return studio.Run(ctx)
}
