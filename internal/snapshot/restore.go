package snapshot

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/autopilot/internal/errors"
)

// Restore makes the snapshot's root match its manifest exactly: paths the
// snapshot does not list are removed, missing or changed ones are written
// back. Every blob is verified before the tree is touched, so a corrupted
// snapshot fails without modifying anything.
func (s *Store) Restore(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, p := range snap.Manifest.Paths() {
		e := snap.Manifest[p]
		if e.Type != TypeFile {
			continue
		}
		if err := s.verifyBlob(e); err != nil {
			return nil, errors.NewSnapshotError("restore", "verify blob for "+p,
				errors.Join(errors.ErrSnapshotCorrupted, err)).WithSnapshotID(id)
		}
	}

	if err := s.fs.MkdirAll(snap.Root, 0o755); err != nil {
		return nil, errors.NewSnapshotError("restore", "create root", err).WithSnapshotID(id)
	}

	w := s.walker(snap.Root)
	current, err := w.scan(ctx)
	if err != nil {
		return nil, s.restoreErr(id, "scan root", err)
	}

	if err := s.removeExtra(ctx, snap, current); err != nil {
		return nil, s.restoreErr(id, "remove extra paths", err)
	}
	if err := s.writeBack(ctx, snap, current); err != nil {
		return nil, s.restoreErr(id, "write back content", err)
	}

	s.logger.Info("snapshot restored", "snapshot_id", id, "root", snap.Root, "files", snap.Files)
	return snap, nil
}

func (s *Store) restoreErr(id, msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.NewCancellationError("restore interrupted")
	}
	return errors.NewSnapshotError("restore", msg, err).WithSnapshotID(id)
}

// removeExtra deletes paths that are absent from the manifest or whose
// type changed. Deepest paths go first so directories are empty when
// removed.
func (s *Store) removeExtra(ctx context.Context, snap *Snapshot, current Manifest) error {
	paths := current.Paths()
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		want, ok := snap.Manifest[p]
		if ok && want.Type == current[p].Type {
			continue
		}
		if parentRemoved(p, snap.Manifest, current) {
			continue
		}
		if err := s.fs.RemoveAll(s.abs(snap.Root, p)); err != nil {
			return err
		}
	}
	return nil
}

// parentRemoved reports whether an ancestor of p is itself going away, in
// which case removing the ancestor takes p with it.
func parentRemoved(p string, want, current Manifest) bool {
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		w, ok := want[dir]
		if !ok || w.Type != current[dir].Type {
			return true
		}
	}
	return false
}

// writeBack creates directories, files and links that are missing or
// differ from the manifest. Directories stay owner-writable until their
// contents are in place and get their recorded mode last.
func (s *Store) writeBack(ctx context.Context, snap *Snapshot, current Manifest) error {
	paths := snap.Manifest.Paths()
	var dirs []string

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		want := snap.Manifest[p]
		have, exists := current[p]
		if exists && have.Type != want.Type {
			exists = false
		}
		dst := s.abs(snap.Root, p)

		switch want.Type {
		case TypeDir:
			if err := s.fs.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			if err := s.fs.Chmod(dst, want.Mode|0o700); err != nil {
				return err
			}
			dirs = append(dirs, p)
		case TypeFile:
			if exists && have == want {
				continue
			}
			if err := s.copyBlob(want, dst); err != nil {
				return err
			}
		case TypeSymlink:
			if exists && have.Target == want.Target {
				continue
			}
			if exists {
				if err := s.fs.Remove(dst); err != nil {
					return err
				}
			}
			if err := symlink(s.fs, want.Target, dst); err != nil {
				return err
			}
		}
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := s.fs.Chmod(s.abs(snap.Root, dirs[i]), snap.Manifest[dirs[i]].Mode); err != nil {
			return err
		}
	}
	return nil
}

// copyBlob writes a blob to dst through a temp file in the same directory.
func (s *Store) copyBlob(e Entry, dst string) error {
	src, err := s.fs.Open(s.objectPath(e.Hash))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	tmp, err := afero.TempFile(s.fs, filepath.Dir(dst), ".restore-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, err = io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Chmod(tmpName, e.Mode)
	}
	if err == nil {
		err = s.fs.Rename(tmpName, dst)
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
	}
	return err
}

func (s *Store) abs(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

func symlink(fsys afero.Fs, target, dst string) error {
	l, ok := fsys.(afero.Linker)
	if !ok {
		return &os.LinkError{Op: "symlink", Old: target, New: dst, Err: afero.ErrNoSymlink}
	}
	return l.SymlinkIfPossible(target, dst)
}
