package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/source"
	"github.com/boostpack/boostpack/internal/toolchain"
)

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

func TestConfigureArgs(t *testing.T) {
	tests := []struct {
		name        string
		profile     *profile.Profile
		wantHas     []string
		wantMissing []string
	}{
		{
			name:    "openmp on",
			profile: &profile.Profile{Name: "p", CC: "gcc", CXX: "g++", OpenMP: true, BLAS: "none"},
			wantHas: []string{"-DUSE_OPENMP=ON", "-DBUILD_STATIC_LIB=ON", "-DBUILD_CLI=OFF", "-DUSE_GPU=OFF"},
		},
		{
			name:        "openmp off",
			profile:     &profile.Profile{Name: "p", CC: "gcc", CXX: "g++", BLAS: "none"},
			wantHas:     []string{"-DUSE_OPENMP=OFF"},
			wantMissing: []string{"-DUSE_OPENMP=ON", "-DUSE_OPENBLAS=ON"},
		},
		{
			name:    "openblas backend",
			profile: &profile.Profile{Name: "p", CC: "clang", CXX: "clang++", BLAS: "openblas"},
			wantHas: []string{"-DUSE_OPENBLAS=ON", "-DCMAKE_C_COMPILER=clang", "-DCMAKE_CXX_COMPILER=clang++"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := ConfigureArgs(tt.profile, "/src", "/src/build")

			for _, want := range tt.wantHas {
				assert.Contains(t, args, want)
			}

			for _, missing := range tt.wantMissing {
				assert.NotContains(t, args, missing)
			}

			// Static output and PIC are unconditional.
			assert.Contains(t, args, "-DCMAKE_POSITION_INDEPENDENT_CODE=ON")
		})
	}
}

// buildFixture wires a Builder whose cmake invocations are faked. compileOK
// controls whether the fake "compile" step creates the archive.
func buildFixture(t *testing.T, cmakeVersion string, configureErr, compileErr error, compileOK bool) (*Builder, *arena.Arena, string) {
	t.Helper()

	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "include", "LightGBM"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "include", "LightGBM", "c_api.h"), []byte("// api"), 0o644))

	runner := toolchain.NewRunnerWithExec(func(ctx context.Context, inv toolchain.Invocation) toolchain.Commander {
		switch {
		case len(inv.Args) > 0 && inv.Args[0] == "--version":
			return &fakeCommand{out: []byte("cmake version " + cmakeVersion + "\n")}
		case len(inv.Args) > 0 && inv.Args[0] == "--build":
			return &fakeCommand{
				err: compileErr,
				run: func() {
					if compileOK {
						buildDir := inv.Args[1]
						require.NoError(t, os.MkdirAll(buildDir, 0o755))
						require.NoError(t, os.WriteFile(filepath.Join(buildDir, ArchiveName), []byte("!<arch>\n"), 0o644))
					}
				},
			}
		default:
			return &fakeCommand{err: configureErr}
		}
	})

	store, err := arena.Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(runner, store, 2), store, srcDir
}

func testRevision() *source.Revision {
	return &source.Revision{Ref: "v4.5.0", Commit: "abcdef0123456789"}
}

func testProfile() *profile.Profile {
	p := &profile.Profile{Name: "alpine-static", Libc: "musl", Linkage: "static", OpenMP: true}
	if err := p.Validate(); err != nil {
		panic(err)
	}

	return p
}

func TestBuildPublishesArtifact(t *testing.T) {
	b, store, srcDir := buildFixture(t, "3.30.1", nil, nil, true)

	key, err := b.Build(context.Background(), testRevision(), testProfile(), srcDir)
	require.NoError(t, err)

	record, err := store.Get(key)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Contains(t, record.Files, "lib/"+ArchiveName)
	assert.Contains(t, record.Files, "include/LightGBM/c_api.h")
	assert.Equal(t, Stage, record.Stage)
}

func TestBuildStaleCMake(t *testing.T) {
	b, _, srcDir := buildFixture(t, "3.16.3", nil, nil, true)

	_, err := b.Build(context.Background(), testRevision(), testProfile(), srcDir)
	require.Error(t, err)
	assert.Equal(t, "configuration", errdefs.Class(err))
}

func TestBuildConfigureFailure(t *testing.T) {
	b, _, srcDir := buildFixture(t, "3.30.1", errors.New("exit status 1"), nil, true)

	_, err := b.Build(context.Background(), testRevision(), testProfile(), srcDir)
	require.Error(t, err)
	assert.Equal(t, "configuration", errdefs.Class(err))
}

func TestBuildCompileFailure(t *testing.T) {
	b, store, srcDir := buildFixture(t, "3.30.1", nil, errors.New("exit status 2"), false)

	key, err := b.Build(context.Background(), testRevision(), testProfile(), srcDir)
	require.Error(t, err)
	assert.Equal(t, "compilation", errdefs.Class(err))

	// No artifact may be published on the failure path.
	record, getErr := store.Get(key)
	require.NoError(t, getErr)
	assert.Nil(t, record)
}

func TestBuildMissingArchive(t *testing.T) {
	// Compile "succeeds" but produces no archive.
	b, _, srcDir := buildFixture(t, "3.30.1", nil, nil, false)

	_, err := b.Build(context.Background(), testRevision(), testProfile(), srcDir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "was not produced"))
}
