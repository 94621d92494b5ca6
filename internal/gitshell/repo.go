package gitshell

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

// Hash is a git object id in plumbing form, reused across gitshell's API
// instead of gitmeta.SHA so this package stays independent of the data
// model package (it is meant to be usable standalone, the way the real
// git CLI is).
type Hash string

const ZeroHash Hash = "0000000000000000000000000000000000000000"

func (h Hash) String() string { return string(h) }
func (h Hash) IsZero() bool {
	if h == "" {
		return true
	}
	for _, b := range h {
		if b != '0' {
			return false
		}
	}
	return true
}

// Repository is a handle bound to a working directory; every method shells
// out to "git" with that directory as cwd.
type Repository struct {
	dir  string
	log  *log.Logger
	exec execer
}

// Open returns a Repository rooted at dir. dir must already be a git
// worktree or bare repository; gitshell never creates repositories.
func Open(dir string, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Repository{dir: dir, log: logger, exec: realExec}
}

func (r *Repository) cmd(ctx context.Context, args ...string) *gitCmd {
	return newGitCmd(ctx, r.log, r.dir, args...)
}

// Dir returns the working directory gitshell commands run in.
func (r *Repository) Dir() string { return r.dir }
