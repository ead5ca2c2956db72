package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/toolchain"
	"github.com/boostpack/boostpack/internal/transplant"
)

var transplantCmd = &cobra.Command{
	Use:          "transplant <dir>",
	Short:        "Re-run a consumer binary inside a target image",
	Long:         `Mount a directory containing a linked consumer binary into a fresh container image and run it there. A binary that only works on the build host is a packaging defect, not a portable artifact.`,
	RunE:         runTransplant,
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
}

func init() {
	transplantCmd.Flags().String("image", "", "Container image to transplant into")
	transplantCmd.Flags().String("engine", transplant.DefaultEngine, "Container engine (docker or podman)")
	transplantCmd.Flags().StringSlice("packages", []string{}, "Compat packages to install before running")
	_ = transplantCmd.MarkFlagRequired("image")
}

func runTransplant(cmd *cobra.Command, args []string) error {
	log := logging.Setup(os.Stderr, "info")
	ctx := logging.WithLogger(cmd.Context(), log)

	image, _ := cmd.Flags().GetString("image")
	engine, _ := cmd.Flags().GetString("engine")
	packages, _ := cmd.Flags().GetStringSlice("packages")

	target := &profile.Transplant{Image: image, Packages: packages}

	runner := transplant.New(toolchain.NewRunner(), engine)

	if err := runner.CheckBinary(ctx, args[0], target); err != nil {
		return err
	}

	fmt.Printf("binary runs cleanly in %s\n", image)

	return nil
}
