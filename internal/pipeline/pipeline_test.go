package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/config"
	"github.com/boostpack/boostpack/internal/consumer"
	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/pack"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/source"
	"github.com/boostpack/boostpack/internal/toolchain"
	"github.com/boostpack/boostpack/internal/verify"
)

const nmGood = `
0000000000000000 T LGBM_BoosterCreate
0000000000000120 T LGBM_DatasetCreateFromMat
0000000000000240 T omp_get_num_threads
`

const nmBroken = `
0000000000000000 T helper_only
`

// fakeCommand implements toolchain.Commander for testing
type fakeCommand struct {
	out []byte
	err error
	run func()
}

func (f *fakeCommand) CombinedOutput() ([]byte, error) {
	if f.run != nil {
		f.run()
	}

	return f.out, f.err
}

// toolchainFake fakes every external tool the pipeline shells out to.
type toolchainFake struct {
	nmOut        string
	transplantOK bool
	failOpenBLAS bool
}

func (tf *toolchainFake) exec(ctx context.Context, inv toolchain.Invocation) toolchain.Commander {
	switch inv.Path {
	case "cmake":
		if len(inv.Args) > 0 && inv.Args[0] == "--version" {
			return &fakeCommand{out: []byte("cmake version 3.30.1\n")}
		}

		for _, arg := range inv.Args {
			if arg == "-DUSE_OPENBLAS=ON" && tf.failOpenBLAS {
				return &fakeCommand{
					out: []byte("CMake Error: OpenBLAS not found\n"),
					err: errors.New("exit status 1"),
				}
			}
		}

		if len(inv.Args) > 0 && inv.Args[0] == "--build" {
			buildDir := inv.Args[1]
			return &fakeCommand{run: func() {
				_ = os.MkdirAll(buildDir, 0o755)
				_ = os.WriteFile(filepath.Join(buildDir, "lib_lightgbm.a"), []byte("!<arch>\n"), 0o644)
			}}
		}

		return &fakeCommand{}

	case "nm":
		return &fakeCommand{out: []byte(tf.nmOut)}

	case "gcc", "g++":
		if len(inv.Args) > 0 && inv.Args[0] == "--version" {
			return &fakeCommand{out: []byte("gcc 13.2.1\n")}
		}

		return &fakeCommand{run: func() {
			for i, arg := range inv.Args {
				if arg == "-o" {
					_ = os.WriteFile(inv.Args[i+1], []byte("binary"), 0o755)
				}
			}
		}}

	case "docker":
		if !tf.transplantOK {
			return &fakeCommand{out: []byte("sh: /transplant/testapp: not found\n"), err: errors.New("exit status 127")}
		}

		return &fakeCommand{out: []byte("smoke test passed\n")}

	default:
		// Smoke-test execution of a freshly linked binary.
		return &fakeCommand{out: []byte("smoke test passed\n")}
	}
}

// makeUpstream builds a local library repo with a header tree and a tag.
func makeUpstream(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	files := map[string]string{
		"CMakeLists.txt":            "project(lightgbm)\n",
		"include/LightGBM/c_api.h":  "// api\n",
		"include/LightGBM/config.h": "// config\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	_, err = worktree.Add(".")
	require.NoError(t, err)

	sig := &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()}
	hash, err := worktree.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	_, err = repo.CreateTag("v4.5.0", hash, nil)
	require.NoError(t, err)

	return dir
}

func newPipeline(t *testing.T, tf *toolchainFake, noCache bool) (*Pipeline, *arena.Arena) {
	t.Helper()

	cfg := &config.Config{
		SourceURL: makeUpstream(t),
		SourceRef: "v4.5.0",
		Budget:    time.Minute,
		NoCache:   noCache,
	}

	store, err := arena.Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runner := toolchain.NewRunnerWithExec(tf.exec)

	p := New(cfg, store, runner)
	p.Fetcher = source.NewFetcher(cfg.SourceURL)
	p.Consumer = consumer.New(runner, store, consumer.WithInspector(func(string) (*verify.BinaryInfo, error) {
		return &verify.BinaryInfo{Class: "ELFCLASS64", Machine: "EM_X86_64", Type: "ET_EXEC"}, nil
	}))

	return p, store
}

func staticProfile() *profile.Profile {
	p := &profile.Profile{Name: "alpine-static", Libc: "musl", Linkage: "static", OpenMP: true}
	if err := p.Validate(); err != nil {
		panic(err)
	}

	return p
}

func mixedProfile() *profile.Profile {
	p := &profile.Profile{
		Name: "debian-mixed", Libc: "glibc", Linkage: "mixed",
		StaticLibs: []string{"gomp"},
		Transplant: &profile.Transplant{Image: "alpine:3.20", Packages: []string{"libgomp"}},
	}
	if err := p.Validate(); err != nil {
		panic(err)
	}

	return p
}

func TestRunHappyPath(t *testing.T) {
	p, store := newPipeline(t, &toolchainFake{nmOut: nmGood, transplantOK: true}, false)

	result, err := p.Run(context.Background(), []*profile.Profile{staticProfile(), mixedProfile()})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "v4.5.0", result.Revision.Ref)
	assert.NotEmpty(t, result.Revision.Commit)

	for _, res := range result.Results {
		assert.True(t, res.Promoted, res.Profile)
		assert.NoError(t, res.TransplantErr)

		record, err := store.Get(res.BundleKey)
		require.NoError(t, err)
		require.NotNil(t, record, "bundle must be published for %s", res.Profile)
		assert.Equal(t, pack.Stage, record.Stage)
	}

	static := result.Results[0]
	require.NotNil(t, static.Outcome)
	assert.False(t, static.Outcome.FellBack)
	require.NotNil(t, static.Manifest)
	assert.Equal(t, []string{"LightGBM/c_api.h", "LightGBM/config.h"}, static.Manifest.Headers)
	assert.True(t, static.Manifest.OpenMP)
}

func TestRunSymbolVerificationFailureStopsLineage(t *testing.T) {
	p, store := newPipeline(t, &toolchainFake{nmOut: nmBroken, transplantOK: true}, false)

	result, err := p.Run(context.Background(), []*profile.Profile{staticProfile()})
	require.Error(t, err)
	assert.Equal(t, "symbol-verification", errdefs.Class(err))

	res := result.Results[0]
	assert.False(t, res.Promoted)

	// Nothing past the failed verifier may be published.
	bundle, getErr := store.Get(arena.Key{
		Revision: result.Revision.Commit,
		Profile:  staticProfile().Fingerprint(),
		Stage:    pack.Stage,
	})
	require.NoError(t, getErr)
	assert.Nil(t, bundle)
}

func TestRunTransplantFailureBlocksPromotionOnly(t *testing.T) {
	p, store := newPipeline(t, &toolchainFake{nmOut: nmGood, transplantOK: false}, false)

	result, err := p.Run(context.Background(), []*profile.Profile{mixedProfile()})
	require.NoError(t, err, "a portability defect is not a build failure")

	res := result.Results[0]
	require.Error(t, res.TransplantErr)
	assert.Equal(t, "transplant", errdefs.Class(res.TransplantErr))
	assert.False(t, res.Promoted, "the (artifact, environment) pairing must not be promoted")

	// The build itself stays valid: the library artifact is published.
	library, getErr := store.Get(res.LibraryKey)
	require.NoError(t, getErr)
	assert.NotNil(t, library)

	// But no bundle: publication is the durable promotion record.
	bundle, getErr := store.Get(arena.Key{
		Revision: result.Revision.Commit,
		Profile:  mixedProfile().Fingerprint(),
		Stage:    pack.Stage,
	})
	require.NoError(t, getErr)
	assert.Nil(t, bundle)
}

func TestRunTransplantFailureNotCachedAsPromoted(t *testing.T) {
	// A blocked pairing must be re-checked on the next run, never
	// promoted off a stale cache hit.
	tf := &toolchainFake{nmOut: nmGood, transplantOK: false}
	p, _ := newPipeline(t, tf, false)

	profiles := []*profile.Profile{mixedProfile()}

	first, err := p.Run(context.Background(), profiles)
	require.NoError(t, err)
	require.Error(t, first.Results[0].TransplantErr)
	require.False(t, first.Results[0].Promoted)

	second, err := p.Run(context.Background(), profiles)
	require.NoError(t, err)

	res := second.Results[0]
	require.Error(t, res.TransplantErr, "the transplant check must run again")
	assert.False(t, res.Promoted)
}

func TestRunTransplantPassesAfterEnvironmentFixed(t *testing.T) {
	// Once the target environment works, the rerun promotes and publishes.
	tf := &toolchainFake{nmOut: nmGood, transplantOK: false}
	p, store := newPipeline(t, tf, false)

	profiles := []*profile.Profile{mixedProfile()}

	first, err := p.Run(context.Background(), profiles)
	require.NoError(t, err)
	require.False(t, first.Results[0].Promoted)

	tf.transplantOK = true

	second, err := p.Run(context.Background(), profiles)
	require.NoError(t, err)

	res := second.Results[0]
	assert.True(t, res.Promoted)
	assert.NoError(t, res.TransplantErr)

	bundle, getErr := store.Get(res.BundleKey)
	require.NoError(t, getErr)
	assert.NotNil(t, bundle)
}

func TestRunReusesPublishedBundle(t *testing.T) {
	tf := &toolchainFake{nmOut: nmGood, transplantOK: true}
	p, _ := newPipeline(t, tf, false)

	profiles := []*profile.Profile{staticProfile()}

	first, err := p.Run(context.Background(), profiles)
	require.NoError(t, err)
	require.True(t, first.Results[0].Promoted)

	second, err := p.Run(context.Background(), profiles)
	require.NoError(t, err)
	assert.True(t, second.Results[0].Promoted)
	assert.Nil(t, second.Results[0].Outcome, "cached runs skip the consumer build")
}

func TestRunIndependentProfileFailure(t *testing.T) {
	// One profile's failure must not stop the other.
	p, store := newPipeline(t, &toolchainFake{nmOut: nmGood, transplantOK: true, failOpenBLAS: true}, false)

	bad := &profile.Profile{Name: "glibc-blas", Libc: "glibc", Linkage: "static", BLAS: "openblas"}
	require.NoError(t, bad.Validate())
	good := staticProfile()

	result, err := p.Run(context.Background(), []*profile.Profile{bad, good})
	require.Error(t, err)
	assert.Equal(t, "configuration", errdefs.Class(err))
	require.Len(t, result.Results, 2)

	badRes, goodRes := result.Results[0], result.Results[1]
	assert.False(t, badRes.Promoted)

	assert.True(t, goodRes.Promoted, "sibling profiles keep building past a failure")
	record, getErr := store.Get(goodRes.BundleKey)
	require.NoError(t, getErr)
	assert.NotNil(t, record)
}
