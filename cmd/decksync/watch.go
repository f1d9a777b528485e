package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/decksync/decksync/internal/daemon"
	"github.com/decksync/decksync/internal/dashboard"
)

var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Watch a drop folder and import collections automatically",
	Long: `Watch DIR for *.deck files and import each one into the local
collection as it appears. Imports are debounced so files still being
copied are picked up once complete.

With --dashboard-port, a WebSocket dashboard broadcasts import events
and collection statistics to connected clients.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer local.Close()

		logger := newLogger("[daemon] ")
		tags, _ := cmd.Flags().GetString("tags")

		d, err := daemon.New(local, args[0], &daemon.Config{
			Tags:   tags,
			Logger: logger,
		})
		if err != nil {
			return err
		}

		if port := viper.GetInt("dashboard_port"); port > 0 {
			server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					logger.Printf("Error stopping dashboard: %v", err)
				}
			}()
			d.AttachDashboard(dashboard.NewHandler(server, logger))
			fmt.Printf("Dashboard listening on %s\n", server.GetAddr())
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching %s (Ctrl-C to stop)\n", args[0])
		return d.Start(ctx)
	},
}

func init() {
	watchCmd.Flags().String("tags", "", "space-delimited tags for auto-imported notes")
	watchCmd.Flags().Int("dashboard-port", 0, "serve the WebSocket dashboard on this port")
	_ = viper.BindPFlag("dashboard_port", watchCmd.Flags().Lookup("dashboard-port"))

	rootCmd.AddCommand(watchCmd)
}
