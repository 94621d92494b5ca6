package submoduleconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/config"

	"github.com/git-meta/git-meta/internal/gitobj"
)

// SubRepo is the result of materializing a submodule's own repository on
// disk: its object store lives under .git/modules/<name>, optionally
// paired with a linked worktree at <meta>/<name>.
type SubRepo struct {
	Repo    *gitobj.Repository
	ModPath string // <meta>/.git/modules/<name>
	WorkDir string // <meta>/<name>, "" if bare
}

// InitSubmoduleAndRepo materializes the on-disk repository for a newly
// opened submodule: it records the [submodule] stanza in .git/config,
// resolves a relative url against metaURL, creates .git/modules/<name>
// (bare or with a linked worktree), applies an optional template
// directory, and wires up an "origin" remote.
func InitSubmoduleAndRepo(metaGitDir, metaWorkDir, metaURL, name, url, templatePath string, bare bool, logger *log.Logger) (*SubRepo, error) {
	if err := AppendSubmoduleStanza(filepath.Join(metaGitDir, "config"), name, url); err != nil {
		return nil, fmt.Errorf("record submodule config for %q: %w", name, err)
	}
	resolved, err := ResolveURL(name, metaURL, url)
	if err != nil {
		return nil, err
	}

	modPath := filepath.Join(metaGitDir, "modules", name)
	if err := os.MkdirAll(filepath.Dir(modPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(modPath), err)
	}

	var repo *gitobj.Repository
	var workDir string
	if bare {
		repo, err = gitobj.InitBare(modPath, logger)
	} else {
		if err2 := os.MkdirAll(modPath, 0o755); err2 != nil {
			return nil, fmt.Errorf("mkdir %s: %w", modPath, err2)
		}
		workDir = filepath.Join(metaWorkDir, name)
		if err2 := os.MkdirAll(workDir, 0o755); err2 != nil {
			return nil, fmt.Errorf("mkdir %s: %w", workDir, err2)
		}
		if err2 := writeGitdirLink(workDir, modPath, name); err2 != nil {
			return nil, err2
		}
		repo, err = gitobj.Init(modPath, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("init repo for %q: %w", name, err)
	}

	if templatePath != "" {
		if err := applyTemplate(templatePath, modPath); err != nil {
			return nil, fmt.Errorf("apply template for %q: %w", name, err)
		}
	}

	if err := setOriginRemote(repo, resolved); err != nil {
		return nil, fmt.Errorf("configure origin for %q: %w", name, err)
	}

	return &SubRepo{Repo: repo, ModPath: modPath, WorkDir: workDir}, nil
}

// writeGitdirLink writes "<workDir>/.git" as a gitdir-link file pointing
// back at modPath, with a relative ".." depth matching name's path
// segments, matching the form git submodule itself writes.
func writeGitdirLink(workDir, modPath, name string) error {
	depth := strings.Count(name, "/") + 1
	rel := strings.Repeat("../", depth) + filepath.ToSlash(filepath.Join(".git", "modules", name))
	content := fmt.Sprintf("gitdir: %s\n", rel)
	return os.WriteFile(filepath.Join(workDir, ".git"), []byte(content), 0o644)
}

func applyTemplate(templatePath, dstGitDir string) error {
	src := osfs.New(templatePath)
	dst := osfs.New(dstGitDir)
	return util.Walk(src, "", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == "" || path == "." {
			return nil
		}
		if info.IsDir() {
			return dst.MkdirAll(path, 0o755)
		}
		data, err := util.ReadFile(src, path)
		if err != nil {
			return err
		}
		return util.WriteFile(dst, path, data, info.Mode().Perm())
	})
}

func setOriginRemote(repo *gitobj.Repository, url string) error {
	cfg, err := repo.Config()
	if err != nil {
		return err
	}
	if existing, ok := cfg.Remotes["origin"]; ok {
		existing.URLs = []string{url}
	} else {
		cfg.Remotes["origin"] = &config.RemoteConfig{Name: "origin", URLs: []string{url}}
	}
	return repo.SetConfig(cfg)
}

// SetGCAuto0 disables automatic gc for a freshly opened submodule, as C5
// requires ("Turn gc.auto=0 in the sub's config").
func SetGCAuto0(repo *gitobj.Repository) error {
	cfg, err := repo.Config()
	if err != nil {
		return err
	}
	cfg.Raw.Section("gc").SetOption("auto", "0")
	return repo.SetConfig(cfg)
}
