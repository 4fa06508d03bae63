package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"svg2svs/contracts"
	"svg2svs/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server that converts images into SVS pyramids",
	Long: `Start an HTTP server exposing the conversion as a REST API.

  POST /api/v1/pyramids?base_width=16000&factors=4,16,64
       body: the raw image, Content-Type image/svg+xml, image/png, ...
       response: the SVS file
  GET  /api/v1/health

Examples:
  svg2svs serve --port 3000
  svg2svs serve --bind 0.0.0.0 --backend magick`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("bind", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 10*time.Minute, "request timeout")
	serveCmd.Flags().Int64("max-body", 256<<20, "maximum request body size in bytes")

	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.max-body", serveCmd.Flags().Lookup("max-body"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	flags := contracts.InputFlags{
		InputPath:     "-",
		OutputPath:    "-",
		Backend:       viper.GetString("backend"),
		LayersFactors: contracts.DefaultLayersFactors,
		BaseWidth:     contracts.DefaultBaseWidth,
		TileSize:      viper.GetInt("tile-size"),
		Workers:       viper.GetInt("workers"),
		AppMag:        viper.GetInt("app-mag"),
		MPPFromInput:  viper.GetBool("mpp-from-input"),
	}
	if err := flags.Validate(); err != nil {
		return err
	}

	shutdown := startBackend(flags.Backend, logger)
	defer shutdown()

	timeout := viper.GetDuration("server.timeout")
	addr := fmt.Sprintf("%s:%d", viper.GetString("server.bind"), viper.GetInt("server.port"))

	srv := server.NewServer(newConverter(flags, logger, nil), server.Options{
		Version:      version,
		MaxBodyBytes: viper.GetInt64("server.max-body"),
		Timeout:      timeout,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "addr", addr, "backend", flags.Backend)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
