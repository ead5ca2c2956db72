package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/config"
	"github.com/boostpack/boostpack/internal/pack"
	"github.com/boostpack/boostpack/internal/profile"
)

var packCmd = &cobra.Command{
	Use:          "pack <profile-name>",
	Short:        "Export a published distribution bundle",
	Long:         `Copy a published bundle (archive, headers and build manifest) out of the arena into a destination directory.`,
	RunE:         runPack,
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
}

func init() {
	packCmd.Flags().String("revision", "", "Source commit the bundle was built from")
	packCmd.Flags().StringP("out", "o", "", "Destination directory")
	_ = packCmd.MarkFlagRequired("revision")
	_ = packCmd.MarkFlagRequired("out")
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForRun(cmd)
	if err != nil {
		return err
	}

	profiles, err := profile.LoadDir(cfg.ProfileDir)
	if err != nil {
		return err
	}

	var prof *profile.Profile

	for _, p := range profiles {
		if p.Name == args[0] {
			prof = p
			break
		}
	}

	if prof == nil {
		return fmt.Errorf("unknown profile %q", args[0])
	}

	revision, _ := cmd.Flags().GetString("revision")
	out, _ := cmd.Flags().GetString("out")

	store, err := arena.Open(cfg.ArenaDir)
	if err != nil {
		return err
	}

	defer store.Close()

	key := arena.Key{Revision: revision, Profile: prof.Fingerprint(), Stage: pack.Stage}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	if err := pack.New(store).Export(key, out); err != nil {
		return err
	}

	fmt.Printf("bundle exported to %s\n", out)

	return nil
}
