// Package gitshell wraps the git plumbing commands go-git cannot
// replace: merge-base, merge-tree, index read/write, rev-list, notes,
// and reset/checkout. internal/gitobj covers the other half of git
// access (object graph reads, submodule discovery, fetch, checkout onto
// a working tree).
//
// Every command goes through an injectable execer behind a fluent gitCmd
// builder, one small file per git subcommand, so parsers can be unit
// tested without a git binary.
package gitshell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// execer abstracts process execution so tests can substitute a fake.
type execer interface {
	Run(*exec.Cmd) error
	Output(*exec.Cmd) ([]byte, error)
	Start(*exec.Cmd) error
	Wait(*exec.Cmd) error
}

type realExecer struct{}

func (realExecer) Run(cmd *exec.Cmd) error             { return cmd.Run() }
func (realExecer) Output(cmd *exec.Cmd) ([]byte, error) { return cmd.Output() }
func (realExecer) Start(cmd *exec.Cmd) error            { return cmd.Start() }
func (realExecer) Wait(cmd *exec.Cmd) error             { return cmd.Wait() }

var realExec execer = realExecer{}

// gitCmd is a fluent wrapper around exec.Cmd that captures stderr into any
// returned error.
type gitCmd struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	name   string
	log    *log.Logger
}

func newGitCmd(ctx context.Context, logger *log.Logger, dir string, args ...string) *gitCmd {
	name := "git"
	if len(args) > 0 {
		name += " " + args[0]
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	return &gitCmd{cmd: cmd, stderr: &stderr, name: name, log: logger}
}

func (c *gitCmd) AppendEnv(env ...string) *gitCmd {
	if len(env) == 0 {
		return c
	}
	if c.cmd.Env == nil {
		c.cmd.Env = os.Environ()
	}
	c.cmd.Env = append(c.cmd.Env, env...)
	return c
}

func (c *gitCmd) StdinString(s string) *gitCmd {
	c.cmd.Stdin = strings.NewReader(s)
	return c
}

func (c *gitCmd) StdoutPipe() (interface {
	Read([]byte) (int, error)
	Close() error
}, error) {
	return c.cmd.StdoutPipe()
}

func (c *gitCmd) wrap(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(c.stderr.String())
	if msg == "" {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return fmt.Errorf("%s: %w: %s", c.name, err, msg)
}

func (c *gitCmd) Run(exec execer) error {
	return c.wrap(exec.Run(c.cmd))
}

func (c *gitCmd) Start(exec execer) error {
	return c.wrap(exec.Start(c.cmd))
}

func (c *gitCmd) Wait(exec execer) error {
	return c.wrap(exec.Wait(c.cmd))
}

func (c *gitCmd) OutputString(exec execer) (string, error) {
	out, err := exec.Output(c.cmd)
	if err != nil {
		return "", c.wrap(err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

func (c *gitCmd) Output(exec execer) ([]byte, error) {
	out, err := exec.Output(c.cmd)
	if err != nil {
		return nil, c.wrap(err)
	}
	return out, nil
}
