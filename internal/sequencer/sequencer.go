// Package sequencer persists and restores the in-progress state of merge,
// cherry-pick, and rebase operations so that --continue/--abort can resume
// them across process invocations. The format is a directory of
// one-fact-per-file plain-text records, the way git itself lays out
// MERGE_HEAD, CHERRY_PICK_HEAD, and rebase-merge/.
package sequencer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/git-meta/git-meta/internal/gitmeta"
)

// DirFor returns the sequencer directory for op under gitDir
// (<gitdir>/META_MERGE, <gitdir>/META_CHERRY_PICK, <gitdir>/META_REBASE).
func DirFor(gitDir string, op gitmeta.OpType) string {
	switch op {
	case gitmeta.OpMerge:
		return filepath.Join(gitDir, "META_MERGE")
	case gitmeta.OpCherryPick:
		return filepath.Join(gitDir, "META_CHERRY_PICK")
	case gitmeta.OpRebase:
		return filepath.Join(gitDir, "META_REBASE")
	default:
		return filepath.Join(gitDir, "META_"+strings.ToUpper(string(op)))
	}
}

// Write persists state under gitDir, creating the directory and writing
// each fact file, with MESSAGE written last so a reader can treat its
// presence as "the write completed."
func Write(gitDir string, state *gitmeta.SequencerState) error {
	dir := DirFor(gitDir, state.Type)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if err := writeFile(dir, "TYPE", string(state.Type)); err != nil {
		return err
	}
	if err := writeFile(dir, "ORIG_HEAD", state.OriginalHead.SHA.String()); err != nil {
		return err
	}
	if state.OriginalHead.Ref != "" {
		if err := writeFile(dir, "HEAD_NAME", state.OriginalHead.Ref); err != nil {
			return err
		}
	}
	if err := writeFile(dir, "ONTO", state.Target.SHA.String()); err != nil {
		return err
	}
	if state.Target.Ref != "" {
		if err := writeFile(dir, "ONTO_NAME", state.Target.Ref); err != nil {
			return err
		}
	}
	if err := writeFile(dir, "CURRENT", strconv.FormatUint(uint64(state.CurrentCommit), 10)); err != nil {
		return err
	}
	var commits strings.Builder
	for _, c := range state.Commits {
		commits.WriteString(c.String())
		commits.WriteByte('\n')
	}
	if err := writeFile(dir, "COMMITS", commits.String()); err != nil {
		return err
	}
	// MESSAGE last: its presence marks the write as complete.
	return writeFile(dir, "MESSAGE", state.Message)
}

func writeFile(dir, name, content string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read loads the sequencer state for op from gitDir. It returns
// (nil, nil) if no sequencer is in progress, matching spec's "reader
// returns null if the directory is absent or ORIG_HEAD is malformed."
func Read(gitDir string, op gitmeta.OpType) (*gitmeta.SequencerState, error) {
	dir := DirFor(gitDir, op)
	origHeadRaw, err := os.ReadFile(filepath.Join(dir, "ORIG_HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ORIG_HEAD: %w", err)
	}
	origHead := strings.TrimSpace(string(origHeadRaw))
	if len(origHead) != 40 {
		return nil, nil
	}

	onto, _ := os.ReadFile(filepath.Join(dir, "ONTO"))
	headName, _ := os.ReadFile(filepath.Join(dir, "HEAD_NAME"))
	ontoName, _ := os.ReadFile(filepath.Join(dir, "ONTO_NAME"))
	current, _ := os.ReadFile(filepath.Join(dir, "CURRENT"))
	commitsRaw, _ := os.ReadFile(filepath.Join(dir, "COMMITS"))
	message, _ := os.ReadFile(filepath.Join(dir, "MESSAGE"))

	var commits []gitmeta.SHA
	for _, l := range strings.Split(string(commitsRaw), "\n") {
		if l != "" {
			commits = append(commits, gitmeta.SHA(l))
		}
	}
	cur, _ := strconv.ParseUint(strings.TrimSpace(string(current)), 10, 32)

	return &gitmeta.SequencerState{
		Type:          op,
		OriginalHead:  gitmeta.RefPoint{SHA: gitmeta.SHA(origHead), Ref: strings.TrimSpace(string(headName))},
		Target:        gitmeta.RefPoint{SHA: gitmeta.SHA(strings.TrimSpace(string(onto))), Ref: strings.TrimSpace(string(ontoName))},
		CurrentCommit: uint32(cur),
		Commits:       commits,
		Message:       string(message),
	}, nil
}

// Clean removes op's sequencer directory entirely (`rm -rf`).
func Clean(gitDir string, op gitmeta.OpType) error {
	return os.RemoveAll(DirFor(gitDir, op))
}

// InProgress reports whether a sequencer for op exists.
func InProgress(gitDir string, op gitmeta.OpType) bool {
	s, err := Read(gitDir, op)
	return err == nil && s != nil
}
