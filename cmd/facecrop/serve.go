package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dixieflatline76/facecrop/config"
	"github.com/dixieflatline76/facecrop/pkg/api"
	"github.com/dixieflatline76/facecrop/util/log"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload page and crop API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.ListenAddr = serveAddr
		}
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	ok, err := acquireLock(config.AppName + "-serve")
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("another facecrop server is already running")
	}
	defer releaseLock()

	controller, err := newController()
	if err != nil {
		return err
	}

	// The page reports loading progress over the websocket, so serve while the model loads.
	go func() {
		if err := controller.Start(ctx); err != nil {
			log.Printf("Serving without a face model: %v", err)
		}
	}()

	srv := api.NewServer(controller, api.Options{
		Addr:           cfg.ListenAddr,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		MaxConnections: cfg.MaxConnections,
		Version:        config.AppVersion,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()
	fmt.Printf("facecrop listening on http://%s\n", cfg.ListenAddr)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		// The main context is already cancelled, give shutdown its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:49453", "Address to listen on")
	rootCmd.AddCommand(serveCmd)
}
