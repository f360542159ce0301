package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Serve the REST API and the realtime WebSocket",
	Long: `Start the HTTP server.

REST endpoints live under /api and take the acting user from the X-User-ID
header. Clients that want to follow changes connect to /realtime, which sends
a hello frame and then one change frame per database write.

Example usage:
  tb serve                 # Start on the configured port (default 8080)
  tb serve --port 9000     # Start on a custom port

Follow from another machine:
  tb watch --remote ws://host:8080/realtime`,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		db := openBackend(ctx)
		defer db.Close()

		srv, err := server.New(db, &server.Config{
			Port:     port,
			Realtime: realtimeConfig(cfg),
			Logger:   newLogger("server"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create server: %v\n", err)
			os.Exit(1)
		}

		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start server: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Server started on http://%s\n", srv.Addr())
		fmt.Printf("Realtime endpoint: ws://%s/realtime\n", srv.Addr())
		fmt.Printf("Health check: http://%s/health\n", srv.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down server...")
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Server stopped")
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
