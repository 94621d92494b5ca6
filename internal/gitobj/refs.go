package gitobj

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// SetRef points name at h, creating or overwriting it. Used by the
// synthetic-ref GC (C13) to pin submodule commits under refs/commits/<sha>.
func (r *Repository) SetRef(name string, h Hash) error {
	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), plumbing.Hash(h))
	return r.Repo.Storer.SetReference(ref)
}

// Ref resolves name to its stored hash, without following symbolic refs.
func (r *Repository) Ref(name string) (Hash, error) {
	ref, err := r.Repo.Reference(plumbing.ReferenceName(name), false)
	if err != nil {
		return ZeroHash, fmt.Errorf("ref %s: %w", name, err)
	}
	return Hash(ref.Hash()), nil
}

// RemoveRef deletes name.
func (r *Repository) RemoveRef(name string) error {
	return r.Repo.Storer.RemoveReference(plumbing.ReferenceName(name))
}

// ListRefs returns every ref whose name has the given prefix (e.g.
// "refs/commits/"), used by the synthetic-ref GC to enumerate pins.
func (r *Repository) ListRefs(prefix string) ([]string, error) {
	iter, err := r.Repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("iter refs: %w", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		n := ref.Name().String()
		if strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
