package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// EntryType distinguishes manifest entries.
type EntryType string

const (
	TypeFile    EntryType = "file"
	TypeDir     EntryType = "dir"
	TypeSymlink EntryType = "symlink"
)

// Entry describes one path in a manifest. Hash and Size are set for
// files, Target for symlinks.
type Entry struct {
	Type   EntryType   `json:"type"`
	Hash   string      `json:"hash,omitempty"`
	Size   int64       `json:"size,omitempty"`
	Mode   fs.FileMode `json:"mode"`
	Target string      `json:"target,omitempty"`
}

// Manifest maps slash-separated paths relative to the snapshot root to
// their entries. The root itself is not listed.
type Manifest map[string]Entry

// Paths returns the manifest's paths in lexical order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Equal reports whether two manifests describe the same tree content.
// Permission bits are compared; timestamps are not recorded.
func (m Manifest) Equal(o Manifest) bool {
	if len(m) != len(o) {
		return false
	}
	for p, e := range m {
		if oe, ok := o[p]; !ok || oe != e {
			return false
		}
	}
	return true
}

// Changes lists the differences between two manifests.
type Changes struct {
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Modified []string `json:"modified,omitempty"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Diff returns what changed going from before to after.
func Diff(before, after Manifest) Changes {
	var c Changes
	for _, p := range after.Paths() {
		b, ok := before[p]
		switch {
		case !ok:
			c.Added = append(c.Added, p)
		case b != after[p]:
			c.Modified = append(c.Modified, p)
		}
	}
	for _, p := range before.Paths() {
		if _, ok := after[p]; !ok {
			c.Removed = append(c.Removed, p)
		}
	}
	return c
}

// walker scans a tree on an afero filesystem.
type walker struct {
	fs   afero.Fs
	root string
	// skip holds absolute paths that are not part of the tree.
	skip map[string]bool
}

type visitFunc func(rel, abs string, info fs.FileInfo) error

// walk calls fn for every path below root in lexical order. A missing root
// is an empty tree.
func (w walker) walk(ctx context.Context, fn visitFunc) error {
	if _, err := w.fs.Stat(w.root); os.IsNotExist(err) {
		return nil
	}
	return afero.Walk(w.fs, w.root, func(abs string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if abs == w.root {
			return nil
		}
		if w.skip[abs] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.root, abs)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), abs, info)
	})
}

// scan builds a manifest of the tree without storing any content.
func (w walker) scan(ctx context.Context) (Manifest, error) {
	m := make(Manifest)
	err := w.walk(ctx, func(rel, abs string, info fs.FileInfo) error {
		e, err := w.entry(abs, info, nil)
		if err != nil {
			return err
		}
		m[rel] = e
		return nil
	})
	return m, err
}

// entry describes one path. When sink is non-nil, file content is copied
// into it while hashing.
func (w walker) entry(abs string, info fs.FileInfo, sink io.Writer) (Entry, error) {
	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := readlink(w.fs, abs)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Type: TypeSymlink, Target: target, Mode: mode.Perm()}, nil
	case info.IsDir():
		return Entry{Type: TypeDir, Mode: mode.Perm()}, nil
	}

	hash, size, err := hashFile(w.fs, abs, sink)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: TypeFile, Hash: hash, Size: size, Mode: mode.Perm()}, nil
}

func readlink(fsys afero.Fs, path string) (string, error) {
	r, ok := fsys.(afero.LinkReader)
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: afero.ErrNoReadlink}
	}
	return r.ReadlinkIfPossible(path)
}

func hashFile(fsys afero.Fs, path string, sink io.Writer) (string, int64, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	var w io.Writer = h
	if sink != nil {
		w = io.MultiWriter(h, sink)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
