// Package pipeline sequences the build stages for every toolchain profile:
// fetch, library build, artifact verification, consumer build with smoke
// test, distribution packaging, and transplant checks.
//
// Stages run in strict order within a profile; a failed stage stops that
// profile's lineage with nothing published past the failure. Independent
// profiles share no mutable state (each writes its own arena namespace) and
// run concurrently. The whole run lives under one coarse wall-clock budget;
// exceeding it is treated as a hung build.
package pipeline

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/builder"
	"github.com/boostpack/boostpack/internal/config"
	"github.com/boostpack/boostpack/internal/consumer"
	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/manifest"
	"github.com/boostpack/boostpack/internal/pack"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/source"
	"github.com/boostpack/boostpack/internal/toolchain"
	"github.com/boostpack/boostpack/internal/transplant"
	"github.com/boostpack/boostpack/internal/verify"
)

// Pipeline wires the stages together. Fields are exported so callers (and
// tests) can swap individual stages after New.
type Pipeline struct {
	Config       *config.Config
	Store        *arena.Arena
	Fetcher      *source.Fetcher
	Library      *builder.Builder
	Verifier     *verify.Verifier
	Consumer     *consumer.Builder
	Packager     *pack.Packager
	Transplanter *transplant.Runner
	Runner       *toolchain.Runner
}

// New builds a Pipeline with the default stage implementations.
func New(cfg *config.Config, store *arena.Arena, runner *toolchain.Runner) *Pipeline {
	return &Pipeline{
		Config:       cfg,
		Store:        store,
		Fetcher:      source.NewFetcher(cfg.SourceURL),
		Library:      builder.New(runner, store, cfg.Jobs),
		Verifier:     verify.New(runner),
		Consumer:     consumer.New(runner, store),
		Packager:     pack.New(store),
		Transplanter: transplant.New(runner, ""),
		Runner:       runner,
	}
}

// ProfileResult records one profile's trip through the stages.
type ProfileResult struct {
	Profile    string
	LibraryKey arena.Key
	BundleKey  arena.Key
	Outcome    *consumer.Outcome
	Manifest   *manifest.Manifest

	// TransplantErr is set when the artifact built fine but failed in the
	// target environment. It blocks promotion of this pairing without
	// invalidating the build itself.
	TransplantErr error

	// Promoted is true when every check, transplant included, passed.
	Promoted bool
}

// RunResult summarizes a whole pipeline run.
type RunResult struct {
	RunID    string
	Revision *source.Revision
	Started  time.Time
	Results  []*ProfileResult
}

// Run executes the pipeline for every profile. The returned error
// aggregates per-profile fatal failures; transplant failures live on the
// individual results instead.
func (p *Pipeline) Run(ctx context.Context, profiles []*profile.Profile) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Config.Budget)
	defer cancel()

	log := logging.FromContext(ctx)

	result := &RunResult{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
		Results: make([]*ProfileResult, len(profiles)),
	}

	log.Info().Str("run_id", result.RunID).Int("profiles", len(profiles)).Msg("pipeline starting")

	srcDir, err := os.MkdirTemp("", "boostpack-src-")
	if err != nil {
		return nil, err
	}

	defer os.RemoveAll(srcDir)

	rev, err := p.Fetcher.Fetch(ctx, srcDir, p.Config.SourceRef)
	if err != nil {
		// Fetch failure aborts the whole run: no profile can proceed.
		return nil, err
	}

	result.Revision = rev

	group, groupCtx := errgroup.WithContext(ctx)

	var (
		mu       sync.Mutex
		failures *multierror.Error
	)

	for i, prof := range profiles {
		group.Go(func() error {
			res, err := p.runProfile(groupCtx, rev, prof, srcDir)
			result.Results[i] = res

			if err != nil {
				log.Error().Str("profile", prof.Name).Str("class", errdefs.Class(err)).Err(err).Msg("profile failed")

				mu.Lock()
				failures = multierror.Append(failures, errors.Wrap(err, prof.Name))
				mu.Unlock()
			}

			// Profile failures don't cancel sibling profiles; each
			// lineage fails independently.
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}

	return result, failures.ErrorOrNil()
}

// runProfile walks one profile through every stage in order. No stage runs
// past a failed predecessor.
func (p *Pipeline) runProfile(ctx context.Context, rev *source.Revision, prof *profile.Profile, srcDir string) (*ProfileResult, error) {
	log := logging.FromContext(ctx).With().Str("profile", prof.Name).Logger()
	ctx = logging.WithLogger(ctx, log)

	res := &ProfileResult{Profile: prof.Name}

	// A published bundle is only ever written after every check, the
	// transplant included, so a hit here is a durable promotion record.
	bundleKey := arena.Key{Revision: rev.Commit, Profile: prof.Fingerprint(), Stage: pack.Stage}
	if !p.Config.NoCache {
		cached, err := p.Store.Get(bundleKey)
		if err == nil && cached != nil {
			log.Info().Msg("bundle already published for this revision and profile, skipping")
			res.BundleKey = bundleKey
			res.Promoted = true
			return res, nil
		}
	}

	libKey, err := p.Library.Build(ctx, rev, prof, srcDir)
	if err != nil {
		return res, err
	}

	res.LibraryKey = libKey

	report, err := p.Verifier.VerifyLibrary(ctx, p.Store.Dir(libKey), builder.ArchiveName)
	if err != nil {
		return res, err
	}

	toolVersions := p.Runner.ToolVersions(ctx, "cmake", prof.CC, prof.CXX)
	res.Manifest = manifest.Generate(rev, prof, report, toolVersions)

	// The consumer links against a materialized copy; the arena's own
	// payload stays untouched.
	libDir, err := os.MkdirTemp("", "boostpack-lib-")
	if err != nil {
		return res, err
	}

	defer os.RemoveAll(libDir)

	if err := p.Store.Materialize(libKey, libDir); err != nil {
		return res, err
	}

	outcome, consumerKey, err := p.Consumer.Build(ctx, rev, prof, libDir)
	if err != nil {
		return res, err
	}

	res.Outcome = outcome

	// The transplant check gates bundle publication. A blocked pairing
	// leaves library and consumer artifacts in place but publishes no
	// bundle, so a later run re-checks instead of trusting a stale hit.
	if prof.Transplant != nil {
		if err := p.transplantCheck(ctx, consumerKey, libKey, prof); err != nil {
			res.TransplantErr = err
			return res, nil
		}
	}

	res.BundleKey, err = p.Packager.Assemble(libKey, res.Manifest)
	if err != nil {
		return res, err
	}

	res.Promoted = true
	log.Info().Msg("profile promoted")

	return res, nil
}

// transplantCheck re-verifies the consumer binary and the bare artifact in
// the profile's target environment.
func (p *Pipeline) transplantCheck(ctx context.Context, consumerKey, libKey arena.Key, prof *profile.Profile) error {
	binDir, err := os.MkdirTemp("", "boostpack-transplant-bin-")
	if err != nil {
		return errdefs.Transplant(err)
	}

	defer os.RemoveAll(binDir)

	if err := p.Store.Materialize(consumerKey, binDir); err != nil {
		return errdefs.Transplant(err)
	}

	if err := p.Transplanter.CheckBinary(ctx, binDir, prof.Transplant); err != nil {
		return err
	}

	if len(prof.Transplant.ArchivePackages) == 0 {
		return nil
	}

	libDir, err := os.MkdirTemp("", "boostpack-transplant-lib-")
	if err != nil {
		return errdefs.Transplant(err)
	}

	defer os.RemoveAll(libDir)

	if err := p.Store.Materialize(libKey, libDir); err != nil {
		return errdefs.Transplant(err)
	}

	return p.Transplanter.CheckArchive(ctx, libDir, prof)
}
