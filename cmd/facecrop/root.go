package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dixieflatline76/facecrop/asset"
	"github.com/dixieflatline76/facecrop/config"
	"github.com/dixieflatline76/facecrop/pkg/detect"
	"github.com/dixieflatline76/facecrop/pkg/facecrop"
	"github.com/spf13/cobra"
)

var (
	// cfg is the loaded configuration shared by subcommands
	cfg *config.Config

	cfgFile   string
	modelPath string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:           "facecrop",
	Short:         "Crop photos to a square around the first face",
	Version:       config.AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.GetFilename()
		}
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if modelPath != "" {
			c.ModelPath = modelPath
		}
		if cmd.Flags().Changed("debug") {
			c.Debug = debug
		}
		cfg = c
		return nil
	},
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// newController builds a controller for the loaded config, with its model not yet loaded.
func newController() (*facecrop.Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := facecrop.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	loader := detect.NewPigoLoader(cfg.ResolvedModelPath(), cfg.Tuning)
	return facecrop.NewController(loader, opts), nil
}

func init() {
	if about, err := asset.NewManager().GetText("about.txt"); err == nil {
		rootCmd.Long = about
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.facecrop/config.json)")
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "", "Path to the pigo face cascade (default: ~/.facecrop/facefinder)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Also render detection overlay previews")
}
