package gitobj

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/uuid"
)

// FetchSHA fetches a single object id from url into r. Git servers that
// support fetch-by-sha (uploadpack.allowReachableSHA1InWant or
// allowAnySHA1InWant) hand back the object without an intervening ref;
// others reject the request, and FetchSHA returns that error (the
// submodule fetcher reports it as a failed fetch and does not retry with
// full refs).
func (r *Repository) FetchSHA(ctx context.Context, url string, sha Hash) error {
	// The remote name must be unique: the work queue can probe the same
	// sha from several tasks at once, and go-git keys in-flight transport
	// state by remote name.
	remote := git.NewRemote(r.Repo.Storer, &config.RemoteConfig{
		Name: "anonymous-" + uuid.NewString(),
		URLs: []string{url},
	})
	refspec := config.RefSpec(fmt.Sprintf("%s:refs/commits/%s", sha.String(), sha.String()))
	err := remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{refspec},
		Depth:    1,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetch %s from %s: %w", sha.Short(), url, err)
	}
	return nil
}

// FetchRefs fetches the given refspecs from url, for the common case of
// pulling a submodule's branches up to date before searching for a commit.
func (r *Repository) FetchRefs(ctx context.Context, url string, refspecs ...string) error {
	specs := make([]config.RefSpec, len(refspecs))
	for i, s := range refspecs {
		specs[i] = config.RefSpec(s)
	}
	remote := git.NewRemote(r.Repo.Storer, &config.RemoteConfig{
		Name: "anonymous-" + uuid.NewString(),
		URLs: []string{url},
	})
	err := remote.FetchContext(ctx, &git.FetchOptions{RefSpecs: specs})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetch from %s: %w", url, err)
	}
	return nil
}

// HasObject reports whether sha is present in r's object store.
func (r *Repository) HasObject(sha Hash) bool {
	_, err := r.Repo.Storer.EncodedObject(plumbing.AnyObject, plumbing.Hash(sha))
	return err == nil
}

// IsNotFound reports whether err is go-git's not-found / unsupported
// transport sentinel, letting callers distinguish "no such object on the
// remote" from a hard network failure.
func IsNotFound(err error) bool {
	return err == plumbing.ErrObjectNotFound || err == transport.ErrRepositoryNotFound
}
