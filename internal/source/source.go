// Package source acquires the wrapped library's source tree: it clones the
// upstream repository, resolves the configured ref to an immutable commit,
// checks that commit out and initializes nested submodules.
package source

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/logging"
)

// Revision identifies the library source by human-readable ref and the
// commit it resolved to at fetch time. Immutable once resolved.
type Revision struct {
	Ref    string
	Commit string
}

func (r Revision) String() string {
	return fmt.Sprintf("%s@%s", r.Ref, r.Commit)
}

// Fetcher clones a pinned revision of one repository.
type Fetcher struct {
	URL string
}

// NewFetcher creates a Fetcher for the given repository URL. Local paths
// work as URLs, which the tests rely on.
func NewFetcher(url string) *Fetcher {
	return &Fetcher{URL: url}
}

// Fetch clones the repository into dest, resolves ref (tag, branch or
// abbreviated hash) to a commit, checks it out and initializes submodules.
// Any failure is a fetch error: fatal, and dest must not be treated as a
// usable source tree afterwards.
func (f *Fetcher) Fetch(ctx context.Context, dest, ref string) (*Revision, error) {
	log := logging.FromContext(ctx)
	log.Info().Str("url", f.URL).Str("ref", ref).Msg("fetching library source")

	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL: f.URL,
	})
	if err != nil {
		return nil, errdefs.Fetch(fmt.Errorf("clone %s: %w", f.URL, err))
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, errdefs.Fetch(fmt.Errorf("resolve ref %q: %w", ref, err))
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errdefs.Fetch(err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return nil, errdefs.Fetch(fmt.Errorf("checkout %s: %w", hash, err))
	}

	if err := updateSubmodules(worktree); err != nil {
		return nil, errdefs.Fetch(fmt.Errorf("submodules: %w", err))
	}

	rev := &Revision{Ref: ref, Commit: hash.String()}
	log.Info().Str("commit", rev.Commit).Msg("source pinned")

	return rev, nil
}

func updateSubmodules(worktree *git.Worktree) error {
	submodules, err := worktree.Submodules()
	if err != nil {
		return err
	}

	for _, sub := range submodules {
		err := sub.Update(&git.SubmoduleUpdateOptions{
			Init:              true,
			RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		})
		if err != nil {
			return fmt.Errorf("update %s: %w", sub.Config().Name, err)
		}
	}

	return nil
}
