// Package versions ties the hasher, blob store and version log together
// into the add / list / get operations of a repository.
//
// Add runs under an exclusive advisory lock on <root>/lock so the
// exists-check, blob write and log append of one invocation cannot
// interleave with another's. List and Get take the lock shared. The lock is
// advisory: only processes going through a Manager honour it.
package versions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/javanhut/vers/internal/cas"
	"github.com/javanhut/vers/internal/config"
	"github.com/javanhut/vers/internal/history"
	"github.com/javanhut/vers/internal/store"
	"github.com/javanhut/vers/internal/verr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Filesystem hooks for restore, replaced in tests to simulate failures.
var (
	renameFile = os.Rename
	removeFile = os.Remove
)

const (
	lockRetryDelay = 50 * time.Millisecond
	indexTimeout   = time.Second
)

// Outcome is the result of a successful Add.
type Outcome int

const (
	// Created means a new record was appended.
	Created Outcome = iota + 1
	// AlreadyExists means nothing was written.
	AlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}

// Entry is one line of a listing.
type Entry struct {
	Version  int
	Filename string
	Hash     cas.Hash
	Comment  string
}

// Manager performs version operations on one repository.
type Manager struct {
	cfg      *config.Config
	hasher   cas.Hasher
	blobs    cas.BlobStore
	log      history.VersionLog
	lock     *flock.Flock
	timeout  time.Duration
	useIndex bool
	logger   *logrus.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithBlobStore replaces the file blob store.
func WithBlobStore(b cas.BlobStore) Option {
	return func(m *Manager) { m.blobs = b }
}

// WithLog replaces the file version log.
func WithLog(l history.VersionLog) Option {
	return func(m *Manager) { m.log = l }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithoutIndex makes lookups scan the log instead of using index.db.
func WithoutIndex() Option {
	return func(m *Manager) { m.useIndex = false }
}

// Init creates the repository layout under cfg.Root if it is missing: the
// root directory, an empty version log and config.yaml. Existing files are
// left alone. It reports whether anything was created.
func Init(cfg *config.Config, logger *logrus.Logger) (bool, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}

	created := false
	err := os.Mkdir(cfg.Root, 0700)
	switch {
	case err == nil:
		created = true
		logger.WithField("root", cfg.Root).Info("repository directory created")
	case os.IsExist(err):
		info, statErr := os.Stat(cfg.Root)
		if statErr != nil {
			return false, verr.E(verr.ErrStorage, "init", cfg.Root, statErr)
		}
		if !info.IsDir() {
			return false, verr.Errorf(verr.ErrInvalidInput, "init", cfg.Root, "exists and is not a directory")
		}
	default:
		return false, verr.E(verr.ErrStorage, "init", cfg.Root, err)
	}

	logCreated, err := history.Create(cfg.Path(config.LogFile))
	if err != nil {
		return created, err
	}
	if logCreated {
		created = true
		logger.WithField("path", cfg.Path(config.LogFile)).Info("version log created")
	}

	cfgPath := cfg.Path(config.ConfigFile)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := cfg.Save(); err != nil {
			return created, err
		}
		created = true
		logger.WithField("path", cfgPath).Info("config written")
	} else if err != nil {
		return created, verr.E(verr.ErrStorage, "init", cfgPath, err)
	}

	return created, nil
}

// Open returns a Manager for the initialized repository described by cfg.
func Open(cfg *config.Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	logPath := cfg.Path(config.LogFile)
	if _, err := os.Stat(logPath); err != nil {
		if os.IsNotExist(err) {
			return nil, verr.Errorf(verr.ErrNotFound, "open", cfg.Root, "repository not initialized (no %s)", config.LogFile)
		}
		return nil, verr.E(verr.ErrStorage, "open", logPath, err)
	}

	m := &Manager{
		cfg:      cfg,
		hasher:   hasher,
		lock:     flock.New(cfg.Path(config.LockFile)),
		timeout:  timeout,
		useIndex: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logrus.New()
	}
	if m.blobs == nil {
		fc, err := cas.NewFileCAS(cfg.Root, hasher, m.logger)
		if err != nil {
			return nil, err
		}
		m.blobs = fc
	}
	if m.log == nil {
		m.log = history.NewFileLog(logPath, m.logger)
	}
	return m, nil
}

// withLock runs fn holding the repository lock, shared or exclusive.
func (m *Manager) withLock(shared bool, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var ok bool
	var err error
	if shared {
		ok, err = m.lock.TryRLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = m.lock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil || !ok {
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return verr.Errorf(verr.ErrStorage, "lock", m.lock.Path(), "repository is locked by another process (waited %s)", m.timeout)
		}
		return verr.E(verr.ErrStorage, "lock", m.lock.Path(), err)
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.WithFields(logrus.Fields{"path": m.lock.Path(), "error": err}).Error("releasing repository lock")
		}
	}()

	return fn()
}

// normalize cleans a user-supplied filename into the form stored in the log.
func (m *Manager) normalize(op, filename string) (string, error) {
	if filename == "" {
		return "", verr.Errorf(verr.ErrInvalidInput, op, "", "empty filename")
	}
	return filepath.Clean(filename), nil
}

// insideRoot reports whether name lies in the repository directory.
func (m *Manager) insideRoot(name string) bool {
	absRoot, err := filepath.Abs(m.cfg.Root)
	if err != nil {
		return false
	}
	absName, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	return absName == absRoot || strings.HasPrefix(absName, absRoot+string(filepath.Separator))
}

// Add records the current content of filename as its next version.
func (m *Manager) Add(filename, comment string) (Outcome, error) {
	name, err := m.normalize("add", filename)
	if err != nil {
		return 0, err
	}
	if len(name) > history.FilenameSize {
		return 0, verr.Errorf(verr.ErrValidation, "add", "", "filename is %d bytes, limit %d", len(name), history.FilenameSize)
	}
	if m.insideRoot(name) {
		return 0, verr.Errorf(verr.ErrInvalidInput, "add", name, "file is inside the repository directory")
	}

	info, err := os.Stat(name)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return 0, verr.E(verr.ErrNotFound, "add", name, err)
		case errors.Is(err, syscall.ENAMETOOLONG):
			return 0, verr.E(verr.ErrInvalidInput, "add", name, err)
		}
		return 0, verr.E(verr.ErrStorage, "add", name, err)
	}
	if !info.Mode().IsRegular() {
		return 0, verr.Errorf(verr.ErrInvalidInput, "add", name, "not a regular file")
	}

	var outcome Outcome
	err = m.withLock(false, func() error {
		var err error
		outcome, err = m.add(name, comment)
		return err
	})
	return outcome, err
}

// add does the work of Add. The repository lock must be held.
func (m *Manager) add(name, comment string) (Outcome, error) {
	hash, data, err := cas.HashFile(m.hasher, name)
	if err != nil {
		return 0, err
	}

	rec := history.Record{Filename: name, Hash: hash, Comment: comment}
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	fields := logrus.Fields{"filename": name, "hash": hash.String()}

	exists, err := m.exists(rec)
	if err != nil {
		return 0, err
	}
	if exists {
		m.logger.WithFields(fields).Info("version already recorded")
		return AlreadyExists, nil
	}

	created, err := m.blobs.Put(hash, data)
	if err != nil {
		return 0, verr.E(verr.ErrStorage, "add", name, err)
	}

	if err := m.log.Append(rec); err != nil {
		// Only remove a blob this call wrote; an older one may back other records.
		if created {
			if derr := m.blobs.Delete(hash); derr != nil {
				m.logger.WithFields(fields).WithError(derr).Error("rollback: removing blob after failed append")
			} else {
				m.logger.WithFields(fields).Warn("rollback: blob removed after failed append")
			}
		}
		return 0, verr.E(verr.ErrStorage, "add", name, err)
	}

	m.logger.WithFields(fields).WithField("new_blob", created).Debug("version added")
	return Created, nil
}

// exists applies the configured dedup mode.
func (m *Manager) exists(rec history.Record) (bool, error) {
	if m.cfg.Dedup == config.DedupContent {
		return m.log.ExistsHash(rec.Hash)
	}
	if m.useIndex {
		recs, err := m.recordsFor(rec.Filename)
		if err != nil {
			return false, err
		}
		for _, r := range recs {
			if r.Hash == rec.Hash {
				return true, nil
			}
		}
		return false, nil
	}
	return m.log.Exists(rec.Filename, rec.Hash)
}

// recordsFor returns name's records in version order, through the index when
// it is usable and by scanning the log otherwise.
func (m *Manager) recordsFor(name string) ([]history.Record, error) {
	if m.useIndex {
		recs, err := m.indexedRecords(name)
		if err == nil {
			return recs, nil
		}
		m.logger.WithError(err).Warn("index unavailable, scanning log")
	}
	return m.log.FindByFilename(name)
}

func (m *Manager) indexedRecords(name string) ([]history.Record, error) {
	ix, err := store.Open(m.cfg.Path(config.IndexFile), indexTimeout, m.logger)
	if err != nil {
		return nil, err
	}
	defer ix.Close()

	if err := ix.Sync(m.log); err != nil {
		return nil, err
	}
	positions, err := ix.Positions(name)
	if err != nil {
		return nil, err
	}

	recs := make([]history.Record, 0, len(positions))
	for _, pos := range positions {
		rec, err := m.log.ReadAt(pos)
		if err != nil {
			return nil, err
		}
		if rec.Filename != name {
			if rerr := ix.Reset(); rerr != nil {
				m.logger.WithError(rerr).Error("resetting stale index")
			}
			return nil, verr.Errorf(verr.ErrCorruption, "index", m.cfg.Path(config.IndexFile), "position %d holds %q, not %q", pos, rec.Filename, name)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// List returns the versions of filename, or of every file when filename is
// empty. Version numbers count per filename in log order. An untracked
// filename yields an empty result.
func (m *Manager) List(filename string) ([]Entry, error) {
	var entries []Entry
	err := m.withLock(true, func() error {
		if filename == "" {
			seen := map[string]int{}
			for rec, err := range m.log.Scan() {
				if err != nil {
					return err
				}
				seen[rec.Filename]++
				entries = append(entries, entryOf(seen[rec.Filename], rec))
			}
			return nil
		}

		name, err := m.normalize("list", filename)
		if err != nil {
			return err
		}
		recs, err := m.recordsFor(name)
		if err != nil {
			return err
		}
		for i, rec := range recs {
			entries = append(entries, entryOf(i+1, rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func entryOf(version int, rec history.Record) Entry {
	return Entry{Version: version, Filename: rec.Filename, Hash: rec.Hash, Comment: rec.Comment}
}

// Get writes version (1-based) of filename to dest, or over the recorded
// filename when dest is empty, and returns the path written.
func (m *Manager) Get(filename string, version int, dest string) (string, error) {
	name, err := m.normalize("get", filename)
	if err != nil {
		return "", err
	}

	var (
		rec  history.Record
		data []byte
	)
	err = m.withLock(true, func() error {
		recs, err := m.recordsFor(name)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return verr.Errorf(verr.ErrNotFound, "get", name, "file is not tracked")
		}
		if version < 1 || version > len(recs) {
			return verr.Errorf(verr.ErrNotFound, "get", name, "version %d out of range (1-%d)", version, len(recs))
		}
		rec = recs[version-1]

		data, err = m.blobs.Get(rec.Hash)
		if errors.Is(err, verr.ErrNotFound) {
			return verr.E(verr.ErrCorruption, "get", name, errors.Wrapf(err, "version %d references missing blob %s", version, rec.Hash))
		}
		return err
	})
	if err != nil {
		return "", err
	}

	if dest == "" {
		dest = rec.Filename
	}
	if err := m.writeFile(dest, data); err != nil {
		return "", err
	}
	m.logger.WithFields(logrus.Fields{"filename": name, "version": version, "dest": dest}).Debug("version restored")
	return dest, nil
}

// writeFile replaces dest with data via a temp file in the same directory,
// keeping dest's permission bits when it already exists.
func (m *Manager) writeFile(dest string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(dest); err == nil {
		if !info.Mode().IsRegular() {
			return verr.Errorf(verr.ErrInvalidInput, "restore", dest, "destination is not a regular file")
		}
		mode = info.Mode().Perm()
	} else if !os.IsNotExist(err) {
		return verr.E(verr.ErrStorage, "restore", dest, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".vers-*")
	if err != nil {
		return verr.E(verr.ErrStorage, "restore", dest, errors.Wrap(err, "creating temp file"))
	}
	tmpPath := tmp.Name()
	fail := func(err error, msg string) error {
		if rmErr := removeFile(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.WithFields(logrus.Fields{"path": tmpPath, "error": rmErr}).Warn("removing temp file")
		}
		return verr.E(verr.ErrStorage, "restore", dest, errors.Wrap(err, msg))
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fail(err, "writing data")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail(err, "syncing data")
	}
	if err := tmp.Close(); err != nil {
		return fail(err, "closing temp file")
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fail(err, "setting mode")
	}
	if err := renameFile(tmpPath, dest); err != nil {
		return fail(err, "renaming into place")
	}
	return nil
}
