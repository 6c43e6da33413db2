package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dixieflatline76/facecrop/config"
	"github.com/dixieflatline76/facecrop/util"
	"github.com/spf13/cobra"
)

var checkUpdates bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version, optionally checking for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, config.AppName, config.AppVersion)
		if !checkUpdates {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		res, err := util.CheckForUpdates(ctx, nil)
		if err != nil {
			return err
		}
		if res.UpdateAvailable {
			fmt.Fprintf(out, "%s is available: %s\n", res.LatestVersion, res.ReleaseURL)
		} else {
			fmt.Fprintf(out, "Up to date (latest release %s)\n", res.LatestVersion)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&checkUpdates, "check", false, "Check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
