package gitshell

import (
	"context"
	"fmt"
	"strings"
)

// TreeEntry is one line of `git ls-tree`.
type TreeEntry struct {
	Mode string // e.g. "100644", "160000"
	Type string // "blob", "tree", "commit" (the last for gitlinks)
	Hash Hash
	Name string
}

// IsGitlink reports whether this entry is a submodule pointer.
func (e TreeEntry) IsGitlink() bool { return e.Mode == "160000" }

// ListTree lists the immediate (non-recursive) entries of tree.
func (r *Repository) ListTree(ctx context.Context, tree Hash) ([]TreeEntry, error) {
	out, err := r.cmd(ctx, "ls-tree", "--full-tree", tree.String()).OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("ls-tree: %w", err)
	}
	return parseLsTree(out)
}

// ListTreeRecursive lists every blob/gitlink entry under tree, recursing
// into subdirectories, with full repo-relative paths.
func (r *Repository) ListTreeRecursive(ctx context.Context, tree Hash) ([]TreeEntry, error) {
	out, err := r.cmd(ctx, "ls-tree", "-r", "--full-tree", tree.String()).OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("ls-tree -r: %w", err)
	}
	return parseLsTree(out)
}

func parseLsTree(out string) ([]TreeEntry, error) {
	var entries []TreeEntry
	for _, line := range splitLines(out) {
		if line == "" {
			continue
		}
		meta, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		toks := strings.SplitN(meta, " ", 3)
		if len(toks) != 3 {
			continue
		}
		entries = append(entries, TreeEntry{Mode: toks[0], Type: toks[1], Hash: Hash(toks[2]), Name: name})
	}
	return entries, nil
}

// MkTree builds a single (non-recursive) tree object from the given
// entries and returns its hash.
func (r *Repository) MkTree(ctx context.Context, entries []TreeEntry) (Hash, error) {
	var sb strings.Builder
	for _, e := range entries {
		typ := e.Type
		if typ == "" {
			if e.Mode == "160000" {
				typ = "commit"
			} else if e.Mode == "040000" {
				typ = "tree"
			} else {
				typ = "blob"
			}
		}
		fmt.Fprintf(&sb, "%s %s %s\t%s\n", e.Mode, typ, e.Hash, e.Name)
	}
	out, err := r.cmd(ctx, "mktree").StdinString(sb.String()).OutputString(r.exec)
	if err != nil {
		return "", fmt.Errorf("mktree: %w", err)
	}
	return Hash(out), nil
}

// WriteBlob hashes and stores data as a blob object, returning its hash.
func (r *Repository) WriteBlob(ctx context.Context, data []byte) (Hash, error) {
	out, err := r.cmd(ctx, "hash-object", "-w", "--stdin").StdinString(string(data)).OutputString(r.exec)
	if err != nil {
		return "", fmt.Errorf("hash-object: %w", err)
	}
	return Hash(out), nil
}

// ReadBlob returns the contents of a blob object.
func (r *Repository) ReadBlob(ctx context.Context, hash Hash) ([]byte, error) {
	out, err := r.cmd(ctx, "cat-file", "blob", hash.String()).Output(r.exec)
	if err != nil {
		return nil, fmt.Errorf("cat-file blob: %w", err)
	}
	return out, nil
}

// CommitTreeRequest describes a synthetic commit to create with
// commit-tree, bypassing the index entirely.
type CommitTreeRequest struct {
	Tree      Hash
	Parents   []Hash
	Message   string
	Author    *Signature
	Committer *Signature
}

// Signature identifies a commit's author or committer.
type Signature struct {
	Name  string
	Email string
	When  string // RFC 2822 / "<unix> <tz>"; empty means "now"
}

func (s *Signature) env(kind string) []string {
	if s == nil {
		return nil
	}
	env := []string{
		"GIT_" + kind + "_NAME=" + s.Name,
		"GIT_" + kind + "_EMAIL=" + s.Email,
	}
	if s.When != "" {
		env = append(env, "GIT_"+kind+"_DATE="+s.When)
	}
	return env
}

// CommitTree creates a commit object pointing at req.Tree with the given
// parents, without touching the index or HEAD.
func (r *Repository) CommitTree(ctx context.Context, req CommitTreeRequest) (Hash, error) {
	args := []string{"commit-tree", req.Tree.String()}
	for _, p := range req.Parents {
		args = append(args, "-p", p.String())
	}
	var env []string
	env = append(env, req.Author.env("AUTHOR")...)
	env = append(env, req.Committer.env("COMMITTER")...)
	out, err := r.cmd(ctx, args...).AppendEnv(env...).StdinString(req.Message).OutputString(r.exec)
	if err != nil {
		return "", fmt.Errorf("commit-tree: %w", err)
	}
	return Hash(out), nil
}

// IndexEntry is one staged path, as produced by `git ls-files --stage` or
// consumed by `git update-index --index-info`.
type IndexEntry struct {
	Mode  string
	Hash  Hash
	Stage int // 0 = normal, 1/2/3 = conflict ancestor/ours/theirs
	Path  string
}

// ListIndexEntries lists every path staged in the repository's real
// index, including gitlinks (`git ls-files --stage`).
func (r *Repository) ListIndexEntries(ctx context.Context) ([]IndexEntry, error) {
	out, err := r.cmd(ctx, "ls-files", "--stage").OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("ls-files --stage: %w", err)
	}
	var entries []IndexEntry
	for _, line := range splitLines(out) {
		if line == "" {
			continue
		}
		meta, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		toks := strings.Fields(meta)
		if len(toks) != 3 {
			continue
		}
		stage := 0
		fmt.Sscanf(toks[2], "%d", &stage)
		entries = append(entries, IndexEntry{Mode: toks[0], Hash: Hash(toks[1]), Stage: stage, Path: path})
	}
	return entries, nil
}

// ReadTreeReal seeds the repository's real index from tree, discarding
// whatever was staged before (`git read-tree <tree>`). Used to materialize
// a conflict directly into the working repository's index/worktree,
// unlike ReadTreeToIndex's throwaway scratch index.
func (r *Repository) ReadTreeReal(ctx context.Context, tree Hash) error {
	if err := r.cmd(ctx, "read-tree", tree.String()).Run(r.exec); err != nil {
		return fmt.Errorf("read-tree: %w", err)
	}
	return nil
}

// NewScratchIndex allocates an empty throwaway index file for callers
// that build a tree from scratch via UpdateIndexInfo/WriteIndexTree
// instead of seeding one from an existing tree (e.g. stitch's flattened
// trees, which combine entries from several source trees).
func (r *Repository) NewScratchIndex() (string, func(), error) {
	return tempIndexPath()
}

// ReadTreeToIndex materializes tree into a throwaway index file and
// returns its path; callers pass that path back into UpdateIndexInfo /
// WriteIndexTree and must remove it when done.
func (r *Repository) ReadTreeToIndex(ctx context.Context, tree Hash) (string, func(), error) {
	idx, cleanup, err := tempIndexPath()
	if err != nil {
		return "", nil, err
	}
	err = r.cmd(ctx, "read-tree", "--index-output", idx, tree.String()).Run(r.exec)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("read-tree: %w", err)
	}
	return idx, cleanup, nil
}

// UpdateIndexInfo applies adds/removes to the index file at indexPath
// using `update-index --index-info`. An empty indexPath targets the
// repository's real index instead of a scratch one.
func (r *Repository) UpdateIndexInfo(ctx context.Context, indexPath string, entries []IndexEntry) error {
	var sb strings.Builder
	for _, e := range entries {
		if e.Hash.IsZero() && e.Mode == "" {
			fmt.Fprintf(&sb, "000000 %s\t%s\n", ZeroHash, e.Path)
			continue
		}
		if e.Stage > 0 {
			fmt.Fprintf(&sb, "%s %s %d\t%s\n", e.Mode, e.Hash, e.Stage, e.Path)
		} else {
			fmt.Fprintf(&sb, "%s %s 0\t%s\n", e.Mode, e.Hash, e.Path)
		}
	}
	cmd := r.cmd(ctx, "update-index", "--index-info")
	if indexPath != "" {
		cmd = cmd.AppendEnv("GIT_INDEX_FILE=" + indexPath)
	}
	return cmd.StdinString(sb.String()).Run(r.exec)
}

// UpdateIndex applies adds/removes directly to the repository's real
// index (as opposed to UpdateIndexInfo's scratch index), used by callers
// that want to stage a blob without touching the working tree.
func (r *Repository) UpdateIndex(ctx context.Context, entries []IndexEntry) error {
	var sb strings.Builder
	for _, e := range entries {
		if e.Hash.IsZero() && e.Mode == "" {
			fmt.Fprintf(&sb, "000000 %s\t%s\n", ZeroHash, e.Path)
			continue
		}
		fmt.Fprintf(&sb, "%s %s 0\t%s\n", e.Mode, e.Hash, e.Path)
	}
	return r.cmd(ctx, "update-index", "--index-info").StdinString(sb.String()).Run(r.exec)
}

// RemoveFromIndex removes path from the real index without touching the
// working tree (`git update-index --force-remove`).
func (r *Repository) RemoveFromIndex(ctx context.Context, path string) error {
	return r.cmd(ctx, "update-index", "--force-remove", "--", path).Run(r.exec)
}

// WriteIndexTree writes the index at indexPath to a tree object. An empty
// indexPath writes the repository's real index.
func (r *Repository) WriteIndexTree(ctx context.Context, indexPath string) (Hash, error) {
	cmd := r.cmd(ctx, "write-tree")
	if indexPath != "" {
		cmd = cmd.AppendEnv("GIT_INDEX_FILE=" + indexPath)
	}
	out, err := cmd.OutputString(r.exec)
	if err != nil {
		return "", fmt.Errorf("write-tree: %w", err)
	}
	return Hash(out), nil
}

// ConflictedPaths lists paths currently unmerged (stage 1/2/3) in the
// repository's real index.
func (r *Repository) ConflictedPaths(ctx context.Context) ([]string, error) {
	out, err := r.cmd(ctx, "diff", "--name-only", "--diskpath=no", "--diff-filter=U").OutputString(r.exec)
	if err != nil {
		// Older gits reject --diskpath; fall back to ls-files -u.
		out2, err2 := r.cmd(ctx, "ls-files", "-u").OutputString(r.exec)
		if err2 != nil {
			return nil, fmt.Errorf("ls-files -u: %w", err)
		}
		seen := make(map[string]bool)
		var paths []string
		for _, line := range splitLines(out2) {
			if line == "" {
				continue
			}
			_, name, ok := strings.Cut(line, "\t")
			if !ok {
				continue
			}
			if !seen[name] {
				seen[name] = true
				paths = append(paths, name)
			}
		}
		return paths, nil
	}
	var paths []string
	for _, line := range splitLines(out) {
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
