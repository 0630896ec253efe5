package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/logging"
	"github.com/kozaktomas/face-engine/internal/matcher"
	"github.com/kozaktomas/face-engine/internal/web"
	"github.com/kozaktomas/face-engine/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition API server",
	Long: `Start the Face Engine HTTP API.

The embeddings are loaded once at startup and kept in memory; POST
/api/v1/reload swaps in a freshly loaded copy without interrupting requests
that are already running.

Endpoints:
  GET  /api/v1/health
  GET  /api/v1/identities
  POST /api/v1/recognize   (multipart "file", optional "threshold")
  POST /api/v1/reload

Examples:
  face-engine serve
  face-engine serve --port 9090 -e ./embeddings`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (FACE_SERVER_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Float64P("threshold", "t", constants.DefaultThreshold, "Default distance threshold (FACE_THRESHOLD)")
	addEmbeddingsFlag(serveCmd)
	addModelFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = mustGetString(cmd, "host")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := openEngine(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize models: %w", err)
	}

	gallery, err := handlers.NewGallery(embeddingRoots(cmd, cfg), logging.Component(log, "gallery"))
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	m, err := matcher.NewMatcher(engine, cfg.Matching.Threshold, matcher.WithLogger(logging.Component(log, "matcher")))
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, gallery, m, logging.Component(log, "web"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	snap := gallery.Snapshot()
	fmt.Printf("Serving %d identities (%d embeddings) on http://%s:%d\n",
		snap.Store.Len(), snap.Store.Total(), cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
