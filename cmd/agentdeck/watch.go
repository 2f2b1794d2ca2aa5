package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/agentdeck/pkg/discovery"
	"github.com/jingkaihe/agentdeck/pkg/presenter"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch definition directories and report changes",
	Long: `Continuously monitors the commands, skills, and agents directories and
prints an event whenever a definition is added, modified, or removed.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			presenter.Warning("Cancellation requested, shutting down...")
			cancel()
		}()

		registry, err := discovery.NewRegistryFromViper()
		if err != nil {
			presenter.Error(err, "Failed to initialize discovery")
			os.Exit(1)
		}

		registry.Bus().Subscribe(func(_ context.Context, event discovery.ChangeEvent) error {
			switch event.Kind {
			case discovery.ChangeAdded:
				presenter.Success(fmt.Sprintf("added %s '%s' (%s)", event.Category, event.ID, event.Path))
			case discovery.ChangeModified:
				presenter.Info(fmt.Sprintf("modified %s '%s' (%s)", event.Category, event.ID, event.Path))
			case discovery.ChangeRemoved:
				presenter.Warning(fmt.Sprintf("removed %s '%s' (%s)", event.Category, event.ID, event.Path))
			}
			return nil
		})

		presenter.Info(fmt.Sprintf("Watching for definition changes every %s (Ctrl+C to stop)", viper.GetDuration("poll_interval")))

		if err := registry.Watcher().Watch(ctx); err != nil {
			presenter.Error(err, "Watcher failed")
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().Duration("poll-interval", discovery.DefaultPollInterval, "Interval between directory polls")
	watchCmd.Flags().Bool("notify", false, "Use filesystem notifications to react between polls")

	viper.BindPFlag("poll_interval", watchCmd.Flags().Lookup("poll-interval"))
	viper.BindPFlag("watch_notify", watchCmd.Flags().Lookup("notify"))
}
