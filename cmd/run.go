package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/config"
	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/pipeline"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/toolchain"
)

var runCmd = &cobra.Command{
	Use:          "run [profile...]",
	Short:        "Run the full build pipeline",
	Long:         `Fetch the pinned source revision and walk every profile through build, verification, consumer linking, packaging and transplant checks. Profile names given as arguments restrict the run to those profiles.`,
	RunE:         runPipeline,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForRun(cmd)
	if err != nil {
		return err
	}

	log := logging.Setup(os.Stderr, cfg.LogLevel)
	ctx := logging.WithLogger(cmd.Context(), log)

	profiles, err := profile.LoadDir(cfg.ProfileDir)
	if err != nil {
		return err
	}

	profiles, err = selectProfiles(profiles, args)
	if err != nil {
		return err
	}

	store, err := arena.Open(cfg.ArenaDir)
	if err != nil {
		return err
	}

	defer store.Close()

	p := pipeline.New(cfg, store, toolchain.NewRunner())

	result, runErr := p.Run(ctx, profiles)
	if result != nil {
		reportRun(result)
	}

	return runErr
}

// selectProfiles restricts loaded profiles to the names given on the command
// line. No arguments means every profile in the directory.
func selectProfiles(profiles []*profile.Profile, names []string) ([]*profile.Profile, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles found")
	}

	if len(names) == 0 {
		return profiles, nil
	}

	byName := make(map[string]*profile.Profile, len(profiles))
	for _, p := range profiles {
		byName[p.Name] = p
	}

	selected := make([]*profile.Profile, 0, len(names))

	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown profile %q", name)
		}

		selected = append(selected, p)
	}

	return selected, nil
}

func reportRun(result *pipeline.RunResult) {
	if result.Revision != nil {
		fmt.Printf("revision: %s\n", result.Revision)
	}

	for _, res := range result.Results {
		if res == nil {
			continue
		}

		switch {
		case res.Promoted:
			fmt.Printf("  %-24s promoted\n", res.Profile)

			if res.Outcome != nil && res.Outcome.FellBack {
				fmt.Printf("  %-24s note: fell back from %s to %s linkage\n", "", res.Outcome.Requested, res.Outcome.Effective)
			}

		case res.TransplantErr != nil:
			// The build is valid; only this pairing with the target
			// environment is blocked.
			fmt.Printf("  %-24s built, but blocked from promotion: %v\n", res.Profile, res.TransplantErr)

		default:
			fmt.Printf("  %-24s failed\n", res.Profile)
		}
	}
}
