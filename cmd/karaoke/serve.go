package main

import (
	"os"
	"os/signal"
	"syscall"

	"karaoke-backend/internal/app"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the practice core behind the local IPC socket",
	Long: `serve listens on the configured unix socket. A presentation client
receives state events as JSON lines and sends intents back the same way.
Only one instance may run per socket.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(ctx)
	},
}
