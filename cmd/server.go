package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/server"
)

var (
	serverPort     int
	serverAllowAll bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the read-only HTTP API",
	Long: `Serves concepts, notes, documents, provenance, search and pipeline status as JSON over HTTP.
GET /api/status/stream upgrades to a websocket that pushes the status whenever
it changes, e.g. while ` + "`distill run`" + ` works in another terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		idx := openIndexOrWarn(ctx, ws.cfg)
		srv := server.New(server.Config{Port: serverPort, AllowAll: serverAllowAll}, ws.store, ws.tracker, idx)

		// Graceful shutdown.
		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "distill server %s starting on port %d\n", Version, serverPort)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", ws.cfg.DBPath())
		fmt.Fprintf(os.Stderr, "  Search:   %v\n", idx != nil)

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on")
	serverCmd.Flags().BoolVar(&serverAllowAll, "cors-allow-all", false, "allow requests from any origin")
	rootCmd.AddCommand(serverCmd)
}
