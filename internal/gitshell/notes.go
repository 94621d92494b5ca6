package gitshell

import "context"

// Notes accesses the notes tree at ref (e.g. "refs/notes/stitched/converted").
type Notes struct {
	r   *Repository
	ref string
}

// Notes returns a handle bound to ref.
func (r *Repository) Notes(ref string) *Notes {
	return &Notes{r: r, ref: ref}
}

// Add attaches msg to obj, overwriting any existing note on it.
func (n *Notes) Add(ctx context.Context, obj Hash, msg string) error {
	return n.r.cmd(ctx, "notes", "--ref", n.ref, "add", "-f", "-m", msg, obj.String()).Run(n.r.exec)
}

// Show returns the note attached to obj, or "", ErrNotExist if there is
// none.
func (n *Notes) Show(ctx context.Context, obj Hash) (string, error) {
	out, err := n.r.cmd(ctx, "notes", "--ref", n.ref, "show", obj.String()).OutputString(n.r.exec)
	if err != nil {
		return "", ErrNotExist
	}
	return out, nil
}

// Has reports whether obj has a note under this ref.
func (n *Notes) Has(ctx context.Context, obj Hash) bool {
	_, err := n.Show(ctx, obj)
	return err == nil
}
