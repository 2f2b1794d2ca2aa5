package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentdeck/pkg/discovery"
	"github.com/jingkaihe/agentdeck/pkg/presenter"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all discovered agent definitions",
	Long:  `Scan the commands, skills, and agents directories and list every discovered definition.`,
	Run: func(cmd *cobra.Command, _ []string) {
		registry, err := discovery.NewRegistryFromViper()
		if err != nil {
			presenter.Error(err, "Failed to initialize discovery")
			os.Exit(1)
		}

		descriptors, err := registry.ScanAll(cmd.Context())
		if err != nil {
			// Partial results are still usable; surface the categories that failed.
			presenter.Warning(fmt.Sprintf("Some categories failed to scan: %v", err))
		}

		if len(descriptors) == 0 {
			presenter.Info("No definitions found")
			return
		}

		sort.Slice(descriptors, func(i, j int) bool {
			if descriptors[i].Category != descriptors[j].Category {
				return descriptors[i].Category < descriptors[j].Category
			}
			return descriptors[i].ID < descriptors[j].ID
		})

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tID\tNAME\tDESCRIPTION")
		fmt.Fprintln(tw, "--------\t--\t----\t-----------")
		for _, d := range descriptors {
			description := d.Description
			if len(description) > 60 {
				description = description[:57] + "..."
			}
			fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", d.Icon, d.Category, d.ID, d.Name, description)
		}
		tw.Flush()
	},
}
