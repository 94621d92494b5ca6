// Package gitobj is the object-graph half of git access: commit/tree
// reads, submodule discovery, fetch, and worktree checkout, built on
// github.com/go-git/go-git/v5. internal/gitshell covers the plumbing
// commands go-git has no equivalent for.
package gitobj

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Hash mirrors plumbing.Hash so callers outside this package don't need
// to import go-git directly, and so this package can attach its own
// methods (e.g. Short) that plumbing.Hash doesn't provide.
type Hash plumbing.Hash

// String returns h as a 40-char lowercase hex string.
func (h Hash) String() string { return plumbing.Hash(h).String() }

// IsZero reports whether h is the null object id.
func (h Hash) IsZero() bool { return plumbing.Hash(h).IsZero() }

// Short returns an abbreviated form suitable for log lines.
func (h Hash) Short() string {
	s := h.String()
	if len(s) <= 10 {
		return s
	}
	return s[:10]
}

// ZeroHash is the null object id.
var ZeroHash = Hash(plumbing.ZeroHash)

// NewHash parses a 40-char hex string into a Hash.
func NewHash(s string) Hash { return Hash(plumbing.NewHash(s)) }

// Repository wraps a go-git repository together with the on-disk paths
// git-meta needs for submodule bookkeeping (the worktree root and the
// .git directory, which may differ from each other for linked worktrees
// or may be the same directory for a bare repo).
type Repository struct {
	Root   string // worktree root ("" for bare)
	GitDir string // .git (or the bare repo dir itself)
	Repo   *git.Repository
	Bare   bool
	log    *log.Logger
}

// Open opens an existing repository (bare or not) rooted at dir.
func Open(dir string, logger *log.Logger) (*Repository, error) {
	r, err := git.PlainOpen(dir)
	if err == nil {
		return wrap(dir, r, isBareFromStorer(r), logger)
	}
	r, err2 := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: false})
	if err2 == nil {
		if isBareFromStorer(r) {
			return wrap(dir, r, true, logger)
		}
		return wrap(dir, r, false, logger)
	}
	return nil, fmt.Errorf("open %s: %w", dir, err)
}

func isBareFromStorer(r *git.Repository) bool {
	cfg, err := r.Config()
	if err != nil {
		return false
	}
	return cfg.Core.IsBare
}

func wrap(dir string, r *git.Repository, bare bool, logger *log.Logger) (*Repository, error) {
	gd := dir
	root := ""
	if !bare {
		root = dir
		gd = dir + "/.git"
	}
	return &Repository{Root: root, GitDir: gd, Repo: r, Bare: bare, log: logger}, nil
}

// InitBare creates a new bare repository at dir.
func InitBare(dir string, logger *log.Logger) (*Repository, error) {
	r, err := git.PlainInit(dir, true)
	if err != nil {
		return nil, fmt.Errorf("init bare %s: %w", dir, err)
	}
	return &Repository{GitDir: dir, Repo: r, Bare: true, log: logger}, nil
}

// Init creates a new non-bare repository at dir.
func Init(dir string, logger *log.Logger) (*Repository, error) {
	r, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", dir, err)
	}
	return &Repository{Root: dir, GitDir: dir + "/.git", Repo: r, Bare: false, log: logger}, nil
}

// Config returns the repository's merged configuration.
func (r *Repository) Config() (*config.Config, error) {
	return r.Repo.Config()
}

// SetConfig persists cfg as the repository's configuration.
func (r *Repository) SetConfig(cfg *config.Config) error {
	return r.Repo.Storer.SetConfig(cfg)
}

// CommitObject resolves a commit by hash.
func (r *Repository) CommitObject(h Hash) (*object.Commit, error) {
	return r.Repo.CommitObject(plumbing.Hash(h))
}

// TreeObject resolves a tree by hash.
func (r *Repository) TreeObject(h Hash) (*object.Tree, error) {
	return r.Repo.TreeObject(plumbing.Hash(h))
}

// ResolveRevision resolves a revision expression to a hash.
func (r *Repository) ResolveRevision(rev string) (Hash, error) {
	h, err := r.Repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return ZeroHash, fmt.Errorf("resolve %q: %w", rev, err)
	}
	return Hash(*h), nil
}

// Worktree returns the repository's worktree (fails for bare repos).
func (r *Repository) Worktree() (*git.Worktree, error) {
	return r.Repo.Worktree()
}
