package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/config"
)

var arenaCmd = &cobra.Command{
	Use:          "arena",
	Short:        "Inspect or reset the artifact arena",
	SilenceUsage: true,
}

var arenaStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show artifact count and total payload size",
	RunE:         runArenaStats,
	SilenceUsage: true,
}

var arenaClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Remove every published artifact",
	RunE:         runArenaClear,
	SilenceUsage: true,
}

func init() {
	arenaCmd.AddCommand(arenaStatsCmd)
	arenaCmd.AddCommand(arenaClearCmd)
	rootCmd.AddCommand(arenaCmd)
}

func openArena(cmd *cobra.Command) (*arena.Arena, error) {
	cfg, err := config.NewLoader().LoadForRun(cmd)
	if err != nil {
		return nil, err
	}

	return arena.Open(cfg.ArenaDir)
}

func runArenaStats(cmd *cobra.Command, args []string) error {
	store, err := openArena(cmd)
	if err != nil {
		return err
	}

	defer store.Close()

	count, size, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("%d artifacts, %d bytes\n", count, size)

	return nil
}

func runArenaClear(cmd *cobra.Command, args []string) error {
	store, err := openArena(cmd)
	if err != nil {
		return err
	}

	defer store.Close()

	return store.Clear()
}
