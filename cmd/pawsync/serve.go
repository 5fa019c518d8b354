package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pawsitive/pawsync/internal/config"
	"github.com/pawsitive/pawsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "service",
	Short:   "Serve sessions over HTTP and WebSocket",
	Long: `Start the pawsync document service.

The service exposes the configured store (sqlite or memory) to remote
clients:

  GET    /health
  GET    /v1/sessions                  list sessions
  POST   /v1/sessions                  create (409 if the code is taken)
  GET    /v1/sessions/:id              read
  HEAD   /v1/sessions/:id              exists
  PATCH  /v1/sessions/:id              merge a partial document
  DELETE /v1/sessions/:id              delete
  GET    /v1/sessions/:id/subscribe    WebSocket snapshot stream

Example usage:
  pawsync serve --db ./pets.db --store sqlite
  pawsync serve --addr :9000 --server-token s3cret

Point clients at it with --store remote --url http://host:8080.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.Store.Driver == config.DriverRemote {
			fatal("serve needs a local store (sqlite or memory), not %s", cfg.Store.Driver)
		}
		gw, closeGateway := openGateway(true)
		defer closeGateway()

		srv := server.NewServer(gw, &server.Config{
			Addr:           cfg.Server.Addr,
			Token:          cfg.Server.Token,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logs.New("server"),
		})
		if err := srv.Start(); err != nil {
			fatal("failed to start server: %w", err)
		}

		addr := srv.GetAddr()
		fmt.Printf("%s pawsync serving %s store on http://%s\n", RenderAccent("🐾"), cfg.Store.Driver, addr)
		fmt.Printf("   Subscribe: ws://%s/v1/sessions/{id}/subscribe\n", addr)
		fmt.Printf("   Health:    http://%s/health\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Server stopped")
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Address to listen on (default :8080)")
	serveCmd.Flags().String("server-token", "", "Require this bearer token on /v1 routes")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("server.token", serveCmd.Flags().Lookup("server-token"))

	rootCmd.AddCommand(serveCmd)
}
