// Package opener implements on-demand acquisition of submodule
// repository handles: the Opener lazily discovers which subs are already
// open or half-open (bare), and can materialize a new one fully-open or
// bare on request, caching each handle for the operation's lifetime.
package opener

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/fetcher"
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

// Mode controls how aggressively GetSubrepo materializes a submodule.
type Mode int

const (
	// ForceOpen always yields a full, checked-out working tree.
	ForceOpen Mode = iota
	// AllowBare accepts a bare (half-open) repo if that's all that's
	// needed, reusing one if already present.
	AllowBare
	// ForceBare never materializes a working tree: it reuses a half-open
	// repo or initializes a bare one. A sub that is already fully open is
	// returned as its open handle; it is not treated as half-open.
	ForceBare
)

// PostOpenHook is invoked exactly once per sub per operation, right after
// a sub transitions to fully open.
type PostOpenHook func(name gitmeta.Path, sub *gitobj.Repository) error

// Opener lazily discovers and caches submodule handles for one meta-repo
// operation's lifetime. It is not safe to reuse across HEAD changes.
type Opener struct {
	MetaShell *gitshell.Repository
	MetaObj   *gitobj.Repository
	MetaDir   string // .git
	WorkDir   string // meta worktree root, "" if bare
	Fetcher   *fetcher.SubmoduleFetcher
	Log       *log.Logger
	PostOpen  PostOpenHook

	pinned gitobj.Hash // commit whose tree subs are opened at

	mu          sync.Mutex
	initialized bool
	openSubs    map[gitmeta.Path]*gitobj.Repository
	halfOpen    map[gitmeta.Path]*gitobj.Repository
	templatePath string
	sparse      bool
	hooked      map[gitmeta.Path]bool
}

// New constructs an Opener; pinned is the commit whose tree entries name
// the sub SHAs to open against.
func New(metaShell *gitshell.Repository, metaObj *gitobj.Repository, metaDir, workDir string, pinned gitobj.Hash, f *fetcher.SubmoduleFetcher, logger *log.Logger) *Opener {
	return &Opener{
		MetaShell: metaShell,
		MetaObj:   metaObj,
		MetaDir:   metaDir,
		WorkDir:   workDir,
		Fetcher:   f,
		Log:       logger,
		pinned:    pinned,
	}
}

func (o *Opener) init(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}
	o.openSubs = map[gitmeta.Path]*gitobj.Repository{}
	o.halfOpen = map[gitmeta.Path]*gitobj.Repository{}
	o.hooked = map[gitmeta.Path]bool{}

	if tp, ok := o.MetaShell.ConfigString(ctx, "meta.submoduleTemplatePath"); ok {
		o.templatePath = tp
	}
	o.sparse = sparsecheckout.InSparseMode(ctx, o.MetaShell, o.MetaDir)

	configText, _ := readConfigFile(o.MetaDir)
	openNames := submoduleconfig.ParseOpenSubs(configText)
	for name := range openNames {
		repo, err := gitobj.Open(subWorkDir(o.WorkDir, name), o.Log)
		if err != nil {
			repo, err = gitobj.Open(subModulesDir(o.MetaDir, name), o.Log)
			if err != nil {
				continue
			}
			o.halfOpen[gitmeta.Path(name)] = repo
			continue
		}
		o.openSubs[gitmeta.Path(name)] = repo
	}
	o.initialized = true
	return nil
}

// GetSubrepo returns a handle for name: the cached open repo when there
// is one, otherwise whatever mode calls for: a full checkout, a reused
// half-open bare repo, or a freshly initialized bare one.
func (o *Opener) GetSubrepo(ctx context.Context, name gitmeta.Path, mode Mode) (*gitobj.Repository, error) {
	if err := o.init(ctx); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if r, ok := o.openSubs[name]; ok {
		o.mu.Unlock()
		return r, nil
	}
	half, halfOK := o.halfOpen[name]
	o.mu.Unlock()

	switch mode {
	case ForceOpen:
		if halfOK {
			o.mu.Lock()
			delete(o.halfOpen, name)
			o.mu.Unlock()
		}
		return o.fullOpen(ctx, name)
	case ForceBare:
		if halfOK {
			return half, nil
		}
		return o.bareOpen(ctx, name)
	default: // AllowBare
		if halfOK {
			return half, nil
		}
		return o.bareOpen(ctx, name)
	}
}

// ClearAbsorbedCache drops name's half-open cache entry so a later
// ForceOpen reopens it properly, used when a conflict forces a workdir
// to materialize.
func (o *Opener) ClearAbsorbedCache(name gitmeta.Path) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.halfOpen, name)
}

// OpenSubs returns the set of currently fully-open submodule names.
func (o *Opener) OpenSubs(ctx context.Context) (map[gitmeta.Path]bool, error) {
	if err := o.init(ctx); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[gitmeta.Path]bool, len(o.openSubs))
	for n := range o.openSubs {
		out[n] = true
	}
	return out, nil
}

func (o *Opener) lookupPinnedSHA(name gitmeta.Path) (gitmeta.SHA, string, error) {
	commit, err := o.MetaObj.CommitObject(o.pinned)
	if err != nil {
		return "", "", fmt.Errorf("resolve pinned commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", "", fmt.Errorf("tree of pinned commit: %w", err)
	}
	subs, err := o.MetaObj.ListSubmodules(tree)
	if err != nil {
		return "", "", err
	}
	for _, s := range subs {
		if s.Path == string(name) {
			return gitmeta.SHA(s.SHA.String()), s.URL, nil
		}
	}
	return "", "", fmt.Errorf("no gitlink for %q in pinned tree", name)
}

func (o *Opener) bareOpen(ctx context.Context, name gitmeta.Path) (*gitobj.Repository, error) {
	sha, url, err := o.lookupPinnedSHA(name)
	if err != nil {
		return nil, err
	}
	metaURL, _ := o.Fetcher.GetMetaOriginURL()

	sub, err := submoduleconfig.InitSubmoduleAndRepo(o.MetaDir, o.WorkDir, metaURL, string(name), url, o.templatePath, true, o.Log)
	if err != nil {
		return nil, fmt.Errorf("init bare submodule %q: %w", name, err)
	}
	if err := o.Fetcher.FetchSha(ctx, sub.Repo, name, sha); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.halfOpen[name] = sub.Repo
	o.mu.Unlock()
	return sub.Repo, nil
}

// fullOpen materializes name as a full working-tree checkout at its
// pinned sha, rolling back (deiniting) if the fetch fails so no
// half-open state is left behind.
func (o *Opener) fullOpen(ctx context.Context, name gitmeta.Path) (*gitobj.Repository, error) {
	sha, url, err := o.lookupPinnedSHA(name)
	if err != nil {
		return nil, err
	}
	metaURL, _ := o.Fetcher.GetMetaOriginURL()

	sub, err := submoduleconfig.InitSubmoduleAndRepo(o.MetaDir, o.WorkDir, metaURL, string(name), url, o.templatePath, false, o.Log)
	if err != nil {
		return nil, fmt.Errorf("init submodule %q: %w", name, err)
	}

	if err := o.Fetcher.FetchSha(ctx, sub.Repo, name, sha); err != nil {
		_ = o.rollback(string(name))
		return nil, err
	}
	if err := submoduleconfig.SetGCAuto0(sub.Repo); err != nil {
		o.Log.Warn("could not disable gc.auto", "submodule", name, "err", err)
	}
	if err := sub.Repo.CheckoutDetached(gitobj.NewHash(string(sha))); err != nil {
		return nil, fmt.Errorf("checkout %q at %s: %w", name, sha.Short(), err)
	}

	if o.sparse {
		if err := sparsecheckout.AddToSparseFile(o.MetaDir, string(name)); err != nil {
			return nil, err
		}
	}

	o.mu.Lock()
	already := o.hooked[name]
	o.hooked[name] = true
	o.openSubs[name] = sub.Repo
	o.mu.Unlock()

	if o.PostOpen != nil && !already {
		if err := o.PostOpen(name, sub.Repo); err != nil {
			return nil, fmt.Errorf("post-open hook for %q: %w", name, err)
		}
	}
	return sub.Repo, nil
}

func (o *Opener) rollback(name string) error {
	return deinitOne(o.MetaDir, o.WorkDir, name, o.sparse)
}

func readConfigFile(gitDir string) (string, error) {
	data, err := readFileTolerant(gitDir + "/config")
	return data, err
}
