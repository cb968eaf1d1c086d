package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/cdp-mcp/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s version %s\n", version.Name, version.Version)
		if !versionCheck {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		info := version.NewChecker().CheckForUpdates(ctx)
		switch {
		case info.Error != "":
			return fmt.Errorf("update check failed: %s", info.Error)
		case info.UpdateAvailable:
			fmt.Println(info.UpdateMessage())
		default:
			fmt.Println("You are running the latest version.")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
