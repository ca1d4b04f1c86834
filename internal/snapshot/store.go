// Package snapshot provides content-addressed checkpoints of a directory
// tree that can be restored exactly.
//
// A store directory holds two kinds of data:
//
//	objects/ab/abcdef...   file contents, keyed by sha256
//	snapshots/<id>.json    one manifest per snapshot
//
// Identical content is stored once across all snapshots. Snapshots are
// immutable once written and are only removed by an explicit Delete; blob
// space is only reclaimed by an explicit GC.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/logging"
)

const (
	objectsDir   = "objects"
	snapshotsDir = "snapshots"
	tmpDir       = "tmp"
	manifestExt  = ".json"

	idPrefix     = "snapshot-"
	idTimeLayout = "20060102T150405Z"
)

// Info is the summary of a snapshot, without its manifest.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Root      string    `json:"root"`
	Label     string    `json:"label,omitempty"`
	Files     int       `json:"files"`
	Bytes     int64     `json:"bytes"`
}

// Snapshot is a stored checkpoint.
type Snapshot struct {
	Info
	Manifest Manifest `json:"manifest"`
}

// Store creates and restores snapshots. It is safe for concurrent use.
// When backed by the OS filesystem, mutations also hold an advisory lock
// on the store directory so separate processes can share it.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *logging.Logger

	mu  sync.Mutex
	seq int
	now func() time.Time
}

// NewStore opens (creating if needed) a store rooted at dir on fsys.
func NewStore(fsys afero.Fs, dir string, logger *logging.Logger) (*Store, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.NewSnapshotError("open", "resolve store directory", err)
	}
	for _, sub := range []string{objectsDir, snapshotsDir, tmpDir} {
		if err := fsys.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, errors.NewSnapshotError("open", "create store directory", err)
		}
	}
	return &Store{
		fs:     fsys,
		dir:    abs,
		logger: logging.OrNop(logger).WithComponent("snapshot"),
		now:    time.Now,
	}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// lock serializes mutations within and across processes.
func (s *Store) lock() (func(), error) {
	s.mu.Lock()
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return s.mu.Unlock, nil
	}
	fl := newFileLock(s.dir)
	if err := fl.Lock(); err != nil {
		s.mu.Unlock()
		return nil, errors.NewSnapshotError("lock", "lock store", err)
	}
	return func() {
		_ = fl.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *Store) walker(root string) walker {
	return walker{fs: s.fs, root: root, skip: map[string]bool{s.dir: true}}
}

// Create checkpoints the tree at root. A root that does not exist yet is
// recorded as an empty tree. The store directory is excluded when it lives
// under root.
func (s *Store) Create(ctx context.Context, root, label string) (*Snapshot, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewSnapshotError("create", "resolve root", err)
	}

	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	created := s.now().UTC()
	id := s.nextID(created)
	snap := &Snapshot{
		Info:     Info{ID: id, CreatedAt: created, Root: root, Label: label},
		Manifest: make(Manifest),
	}

	w := s.walker(root)
	err = w.walk(ctx, func(rel, abs string, info fs.FileInfo) error {
		var e Entry
		var err error
		if info.Mode().IsRegular() {
			e, err = s.storeBlob(w, abs, info)
			snap.Files++
			snap.Bytes += e.Size
		} else {
			e, err = w.entry(abs, info, nil)
		}
		if err != nil {
			return err
		}
		snap.Manifest[rel] = e
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewCancellationError("snapshot interrupted")
		}
		return nil, errors.NewSnapshotError("create", "capture tree", err).WithSnapshotID(id)
	}

	if err := s.writeManifest(snap); err != nil {
		return nil, err
	}
	s.logger.Info("snapshot created",
		"snapshot_id", id,
		"root", root,
		"files", snap.Files,
		"bytes", snap.Bytes)
	return snap, nil
}

// nextID returns an unused id for a snapshot taken at t.
func (s *Store) nextID(t time.Time) string {
	stamp := t.Format(idTimeLayout)
	for {
		s.seq++
		id := fmt.Sprintf("%s%s-%04d", idPrefix, stamp, s.seq)
		if ok, _ := afero.Exists(s.fs, s.manifestPath(id)); !ok {
			return id
		}
	}
}

// ValidID reports whether id has the snapshot id shape.
func ValidID(id string) bool {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok || len(rest) < len(idTimeLayout)+2 {
		return false
	}
	if _, err := time.Parse(idTimeLayout, rest[:len(idTimeLayout)]); err != nil {
		return false
	}
	return rest[len(idTimeLayout)] == '-' && !strings.ContainsAny(rest, `/\.`)
}

// storeBlob copies a file into the object store and returns its entry.
func (s *Store) storeBlob(w walker, abs string, info fs.FileInfo) (Entry, error) {
	tmp, err := afero.TempFile(s.fs, filepath.Join(s.dir, tmpDir), "blob-*")
	if err != nil {
		return Entry{}, err
	}
	tmpName := tmp.Name()
	defer func() { _ = s.fs.Remove(tmpName) }()

	e, err := w.entry(abs, info, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Entry{}, err
	}

	dst := s.objectPath(e.Hash)
	if ok, _ := afero.Exists(s.fs, dst); ok {
		return e, nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Entry{}, err
	}
	if err := s.fs.Rename(tmpName, dst); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.dir, objectsDir, hash[:2], hash)
}

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.dir, snapshotsDir, id+manifestExt)
}

// writeManifest persists a snapshot atomically: temp file, then rename.
func (s *Store) writeManifest(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.NewSnapshotError("create", "marshal manifest", err).WithSnapshotID(snap.ID)
	}
	target := s.manifestPath(snap.ID)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return errors.NewSnapshotError("create", "write manifest", err).WithSnapshotID(snap.ID)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.NewSnapshotError("create", "rename manifest", err).WithSnapshotID(snap.ID)
	}
	return nil
}

// Get loads a snapshot by id.
func (s *Store) Get(id string) (*Snapshot, error) {
	if !ValidID(id) {
		return nil, errors.NewNotFoundError("snapshot", id).WithCause(errors.ErrSnapshotNotFound)
	}
	data, err := afero.ReadFile(s.fs, s.manifestPath(id))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("snapshot", id).WithCause(errors.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, errors.NewSnapshotError("read", "read manifest", err).WithSnapshotID(id)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewSnapshotError("read", "decode manifest", errors.Join(errors.ErrSnapshotCorrupted, err)).
			WithSnapshotID(id)
	}
	if snap.Manifest == nil {
		snap.Manifest = make(Manifest)
	}
	return &snap, nil
}

// List returns all snapshots, newest first.
func (s *Store) List() ([]Info, error) {
	entries, err := afero.ReadDir(s.fs, filepath.Join(s.dir, snapshotsDir))
	if err != nil {
		return nil, errors.NewSnapshotError("list", "read snapshot directory", err)
	}
	var out []Info
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), manifestExt)
		if !ok || e.IsDir() || !ValidID(id) {
			continue
		}
		snap, err := s.Get(id)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "snapshot_id", id, "error", err.Error())
			continue
		}
		out = append(out, snap.Info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Delete removes a snapshot's manifest. Its blobs stay until GC.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.fs.Remove(s.manifestPath(id)); err != nil {
		return errors.NewSnapshotError("delete", "remove manifest", err).WithSnapshotID(id)
	}
	s.logger.Info("snapshot deleted", "snapshot_id", id)
	return nil
}

// GCResult reports what a GC pass reclaimed.
type GCResult struct {
	RemovedBlobs int   `json:"removed_blobs"`
	FreedBytes   int64 `json:"freed_bytes"`
	KeptBlobs    int   `json:"kept_blobs"`
}

// GC removes blobs no snapshot references, and stale temp files.
func (s *Store) GC() (GCResult, error) {
	unlock, err := s.lock()
	if err != nil {
		return GCResult{}, err
	}
	defer unlock()

	referenced, err := s.referencedBlobs()
	if err != nil {
		return GCResult{}, err
	}

	var res GCResult
	objects := filepath.Join(s.dir, objectsDir)
	err = afero.Walk(s.fs, objects, func(path string, info fs.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if referenced[info.Name()] {
			res.KeptBlobs++
			return nil
		}
		if err := s.fs.Remove(path); err != nil {
			return err
		}
		res.RemovedBlobs++
		res.FreedBytes += info.Size()
		return nil
	})
	if err != nil {
		return res, errors.NewSnapshotError("gc", "sweep objects", err)
	}

	stale, _ := afero.ReadDir(s.fs, filepath.Join(s.dir, tmpDir))
	for _, f := range stale {
		_ = s.fs.Remove(filepath.Join(s.dir, tmpDir, f.Name()))
	}

	s.logger.Info("snapshot gc complete",
		"removed_blobs", res.RemovedBlobs,
		"freed_bytes", res.FreedBytes,
		"kept_blobs", res.KeptBlobs)
	return res, nil
}

func (s *Store) referencedBlobs() (map[string]bool, error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	refs := make(map[string]bool)
	for _, info := range infos {
		snap, err := s.Get(info.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range snap.Manifest {
			if e.Type == TypeFile {
				refs[e.Hash] = true
			}
		}
	}
	return refs, nil
}

// Size returns the bytes of distinct content a snapshot references.
func (s *Store) Size(id string) (int64, error) {
	snap, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool)
	var total int64
	for _, e := range snap.Manifest {
		if e.Type == TypeFile && !seen[e.Hash] {
			seen[e.Hash] = true
			total += e.Size
		}
	}
	return total, nil
}

// TotalSize returns the bytes held in the object store.
func (s *Store) TotalSize() (int64, error) {
	var total int64
	err := afero.Walk(s.fs, filepath.Join(s.dir, objectsDir), func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, errors.NewSnapshotError("size", "walk objects", err)
	}
	return total, nil
}

// Changes compares a snapshot with the current state of its root.
func (s *Store) Changes(ctx context.Context, id string) (Changes, error) {
	snap, err := s.Get(id)
	if err != nil {
		return Changes{}, err
	}
	current, err := s.walker(snap.Root).scan(ctx)
	if err != nil {
		return Changes{}, errors.NewSnapshotError("diff", "scan root", err).WithSnapshotID(id)
	}
	return Diff(snap.Manifest, current), nil
}

// verifyBlob checks that a stored blob exists and matches its hash.
func (s *Store) verifyBlob(e Entry) error {
	f, err := s.fs.Open(s.objectPath(e.Hash))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if hex.EncodeToString(h.Sum(nil)) != e.Hash {
		return errors.ErrSnapshotCorrupted
	}
	return nil
}
