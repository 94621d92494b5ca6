package gitshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotExist is returned when a revision or object does not resolve.
var ErrNotExist = errors.New("does not exist")

// RevParse resolves a revision expression (branch, tag, "HEAD^2~3", ":path"
// suffix, etc.) to its object hash.
func (r *Repository) RevParse(ctx context.Context, rev string) (Hash, error) {
	out, err := r.cmd(ctx, "rev-parse", "--verify", "--quiet", "--end-of-options", rev).
		OutputString(r.exec)
	if err != nil {
		return "", ErrNotExist
	}
	return Hash(out), nil
}

// MergeBase returns the best common ancestor of a and b, or ErrNotExist if
// there is none.
func (r *Repository) MergeBase(ctx context.Context, a, b Hash) (Hash, error) {
	out, err := r.cmd(ctx, "merge-base", a.String(), b.String()).OutputString(r.exec)
	if err != nil {
		return "", ErrNotExist
	}
	return Hash(out), nil
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (r *Repository) IsAncestor(ctx context.Context, a, b Hash) (bool, error) {
	err := r.cmd(ctx, "merge-base", "--is-ancestor", a.String(), b.String()).Run(r.exec)
	if err == nil {
		return true, nil
	}
	// exit code 1 means "not an ancestor"; anything else is a real error.
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("merge-base --is-ancestor: %w", err)
}

// SymbolicRef returns the branch HEAD currently points to, or "" if
// detached.
func (r *Repository) SymbolicRef(ctx context.Context, name string) (string, error) {
	out, err := r.cmd(ctx, "symbolic-ref", "--quiet", "--short", name).OutputString(r.exec)
	if err != nil {
		return "", nil
	}
	return out, nil
}

// UpdateRef sets ref to hash, optionally requiring its previous value to be
// oldHash (pass ZeroHash to require the ref not already exist).
func (r *Repository) UpdateRef(ctx context.Context, ref string, hash, oldHash Hash) error {
	args := []string{"update-ref", ref, hash.String()}
	if oldHash != "" {
		args = append(args, oldHash.String())
	}
	return r.cmd(ctx, args...).Run(r.exec)
}

// DeleteRef removes ref.
func (r *Repository) DeleteRef(ctx context.Context, ref string) error {
	return r.cmd(ctx, "update-ref", "-d", ref).Run(r.exec)
}

// DeleteRefs removes every ref in one `update-ref --stdin` transaction, so
// a large prune is a single index-of-refs rewrite instead of one per ref.
func (r *Repository) DeleteRefs(ctx context.Context, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	var in strings.Builder
	for _, ref := range refs {
		in.WriteString("delete ")
		in.WriteString(ref)
		in.WriteByte('\n')
	}
	return r.cmd(ctx, "update-ref", "--stdin").StdinString(in.String()).Run(r.exec)
}

// ForEachRef lists refs matching pattern (e.g. "refs/commits/") as
// name->hash pairs.
func (r *Repository) ForEachRef(ctx context.Context, pattern string) (map[string]Hash, error) {
	out, err := r.cmd(ctx, "for-each-ref", "--format=%(objectname) %(refname)", pattern).
		OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("for-each-ref: %w", err)
	}
	refs := make(map[string]Hash)
	for _, line := range splitLines(out) {
		if line == "" {
			continue
		}
		var hash, name string
		if _, err := fmt.Sscanf(line, "%s %s", &hash, &name); err != nil {
			continue
		}
		refs[name] = Hash(hash)
	}
	return refs, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
