package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentdeck/pkg/discovery"
	"github.com/jingkaihe/agentdeck/pkg/presenter"
)

var reloadCmd = &cobra.Command{
	Use:   "reload <id>",
	Short: "Reload a single definition by identifier",
	Long:  `Invalidate the cached metadata of one definition, re-parse its file, and print the refreshed descriptor.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := discovery.NewRegistryFromViper()
		if err != nil {
			presenter.Error(err, "Failed to initialize discovery")
			os.Exit(1)
		}

		descriptor, err := registry.ReloadOne(cmd.Context(), args[0])
		if err != nil {
			presenter.Error(err, "Reload failed")
			os.Exit(1)
		}

		presenter.Success(fmt.Sprintf("Reloaded %s '%s' (%s)", descriptor.Category, descriptor.ID, descriptor.Path))
		if descriptor.Description != "" {
			presenter.Info(descriptor.Description)
		}
	},
}
