package cas

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/javanhut/vers/internal/verr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TempPrefix starts the name of every in-progress blob file.
const TempPrefix = ".tmp-"

// FileCAS implements BlobStore using flat files named by their hex digest,
// with no extension, directly under root.
type FileCAS struct {
	root   string
	hasher Hasher
	log    *logrus.Logger
}

// NewFileCAS creates a file-based CAS over the existing directory root.
func NewFileCAS(root string, h Hasher, logger *logrus.Logger) (*FileCAS, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, verr.E(verr.ErrNotFound, "open blob store", root, err)
		}
		return nil, verr.E(verr.ErrStorage, "open blob store", root, err)
	}
	if !info.IsDir() {
		return nil, verr.Errorf(verr.ErrInvalidInput, "open blob store", root, "not a directory")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FileCAS{root: root, hasher: h, log: logger}, nil
}

// Path returns the file path for a given hash.
func (f *FileCAS) Path(hash Hash) string {
	return filepath.Join(f.root, hash.String())
}

// Put implements BlobStore.Put. The blob is written to a temporary file and
// renamed into place, so a failed Put never leaves a partial blob.
func (f *FileCAS) Put(hash Hash, data []byte) (bool, error) {
	path := f.Path(hash)

	if computed := f.hasher.Sum(data); computed != hash {
		return false, verr.Errorf(verr.ErrInvalidInput, "put", path, "hash mismatch: content hashes to %s", computed)
	}

	// Content-addressed, so an existing blob never needs rewriting.
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, verr.E(verr.ErrStorage, "put", path, errors.Wrap(err, "checking blob"))
	}

	tmp, err := os.CreateTemp(f.root, TempPrefix+hash.String()[:12]+"-*")
	if err != nil {
		return false, verr.E(verr.ErrStorage, "put", path, errors.Wrap(err, "creating temp file"))
	}
	tmpPath := tmp.Name()
	fail := func(err error, msg string) (bool, error) {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			f.log.WithFields(logrus.Fields{"path": tmpPath, "error": rmErr}).Warn("removing temp blob")
		}
		return false, verr.E(verr.ErrStorage, "put", path, errors.Wrap(err, msg))
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
	if err := os.Rename(tmpPath, path); err != nil {
		return fail(err, "renaming temp file")
	}

	f.log.WithFields(logrus.Fields{"hash": hash.String(), "size": len(data)}).Debug("blob stored")
	return true, nil
}

// Get implements BlobStore.Get. Content that no longer matches its key is
// reported as corruption.
func (f *FileCAS) Get(hash Hash) ([]byte, error) {
	path := f.Path(hash)

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, verr.E(verr.ErrNotFound, "get", path, err)
		}
		return nil, verr.E(verr.ErrStorage, "get", path, errors.Wrap(err, "opening blob"))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, verr.E(verr.ErrStorage, "get", path, errors.Wrap(err, "reading blob"))
	}

	if computed := f.hasher.Sum(data); computed != hash {
		return nil, verr.Errorf(verr.ErrCorruption, "get", path, "content hashes to %s", computed)
	}

	return data, nil
}

// Has implements BlobStore.Has.
func (f *FileCAS) Has(hash Hash) (bool, error) {
	path := f.Path(hash)

	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, verr.E(verr.ErrStorage, "stat", path, err)
	}

	return true, nil
}

// Delete implements BlobStore.Delete.
func (f *FileCAS) Delete(hash Hash) error {
	path := f.Path(hash)

	err := os.Remove(path)
	if os.IsNotExist(err) {
		f.log.WithField("hash", hash.String()).Debug("delete: blob already absent")
		return nil
	}
	if err != nil {
		return verr.E(verr.ErrStorage, "delete", path, err)
	}
	return nil
}

// List calls fn for every blob in the store. Files whose names are not
// digests are skipped.
func (f *FileCAS) List(fn func(Hash) error) error {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return verr.E(verr.ErrStorage, "list", f.root, errors.Wrap(err, "reading dir"))
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		h, err := ParseHash(e.Name())
		if err != nil {
			continue
		}
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

// ListTemp returns the names of temp files left in root by interrupted Puts.
func (f *FileCAS) ListTemp() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, verr.E(verr.ErrStorage, "list temp", f.root, errors.Wrap(err, "reading dir"))
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), TempPrefix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// RemoveTemp deletes a temp file returned by ListTemp.
func (f *FileCAS) RemoveTemp(name string) error {
	if !strings.HasPrefix(name, TempPrefix) || filepath.Base(name) != name {
		return verr.Errorf(verr.ErrInvalidInput, "remove temp", name, "not a temp file name")
	}
	path := filepath.Join(f.root, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return verr.E(verr.ErrStorage, "remove temp", path, err)
	}
	return nil
}
