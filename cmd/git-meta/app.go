package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/fetcher"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
	"github.com/git-meta/git-meta/internal/status"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

// app holds the per-invocation wiring every command shares: one shell and
// one object-graph handle on the meta repo, plus the logger.
type app struct {
	workDir string
	gitDir  string
	shell   *gitshell.Repository
	obj     *gitobj.Repository
	log     *log.Logger
}

func newApp(dir string, logger *log.Logger) (*app, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	obj, err := gitobj.Open(abs, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		workDir: obj.Root,
		gitDir:  obj.GitDir,
		shell:   gitshell.Open(abs, logger),
		obj:     obj,
		log:     logger,
	}, nil
}

// head resolves the current HEAD commit.
func (a *app) head(ctx context.Context) (gitshell.Hash, error) {
	h, err := a.shell.RevParse(ctx, "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return h, nil
}

// resolve turns a user-supplied committish into a commit hash.
func (a *app) resolve(ctx context.Context, rev string) (gitshell.Hash, error) {
	h, err := a.shell.RevParse(ctx, rev)
	if err != nil {
		return "", fmt.Errorf("unknown revision %q", rev)
	}
	return h, nil
}

// openerAt builds one Opener pinned at commit, the way every composite
// operation acquires sub handles (one Opener per op, never shared).
func (a *app) openerAt(commit gitshell.Hash) (*opener.Opener, *fetcher.SubmoduleFetcher) {
	f := fetcher.New(a.obj, gitobj.NewHash(commit.String()))
	op := opener.New(a.shell, a.obj, a.gitDir, a.workDir, gitobj.NewHash(commit.String()), f, a.log)
	return op, f
}

// statusAt builds a status engine sharing op's caches.
func (a *app) statusAt(op *opener.Opener) *status.Engine {
	return status.New(a.shell, a.obj, op)
}

// identity reads the generated-commit identity from the environment,
// falling back to the repo's user.name/user.email configuration.
func (a *app) identity(ctx context.Context, kind string) gitshell.Signature {
	name := os.Getenv("GIT_" + kind + "_NAME")
	email := os.Getenv("GIT_" + kind + "_EMAIL")
	if name == "" {
		name, _ = a.shell.ConfigString(ctx, "user.name")
	}
	if email == "" {
		email, _ = a.shell.ConfigString(ctx, "user.email")
	}
	return gitshell.Signature{Name: name, Email: email}
}

// rewriteSparseBits re-applies the skip-worktree bits after any command
// that changed the open-sub set, when the repo is in sparse mode.
func (a *app) rewriteSparseBits(ctx context.Context) error {
	if !sparsecheckout.InSparseMode(ctx, a.shell, a.gitDir) {
		return nil
	}
	open, err := a.listOpenSubs()
	if err != nil {
		return err
	}
	return sparsecheckout.SetSparseBitsAndWriteIndex(ctx, a.shell, open)
}

// listOpenSubs reports the fully-open sub set straight from disk (spec
// I4: workdir .git link plus modules/<name>/HEAD).
func (a *app) listOpenSubs() (map[string]bool, error) {
	data, err := os.ReadFile(filepath.Join(a.gitDir, "config"))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	open := map[string]bool{}
	for name := range submoduleconfig.ParseOpenSubs(string(data)) {
		dotGit := filepath.Join(a.workDir, name, ".git")
		modHead := filepath.Join(a.gitDir, "modules", name, "HEAD")
		if fileExists(dotGit) && fileExists(modHead) {
			open[name] = true
		}
	}
	return open, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
