// Package store keeps a bbolt index from filename to version-log
// positions. The log is authoritative; the index is a cache that catches
// up with it on Sync and can always be rebuilt from it.
package store

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/javanhut/vers/internal/history"
	"github.com/javanhut/vers/internal/verr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

// Buckets
var (
	BucketFiles = []byte("files") // filename -> big-endian uint64 log positions
	BucketMeta  = []byte("meta")  // bookkeeping
)

var (
	keyRecords = []byte("records") // number of log records indexed
	keyTail    = []byte("tail")    // fingerprint of the last record indexed
)

// Source is the part of the version log the index reads from.
type Source interface {
	Len() (int, error)
	ReadAt(i int) (history.Record, error)
}

// Index maps filenames to their record positions in the version log.
type Index struct {
	db   *bbolt.DB
	path string
	log  *logrus.Logger
}

// Open opens or creates the index at path. timeout bounds the wait for
// bbolt's own file lock.
func Open(path string, timeout time.Duration, logger *logrus.Logger) (*Index, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, verr.E(verr.ErrStorage, "open index", path, err)
	}
	// Ensure buckets exist
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(BucketFiles); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(BucketMeta); e != nil {
			return e
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, verr.E(verr.ErrStorage, "open index", path, err)
	}
	return &Index{db: db, path: path, log: logger}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// Count returns how many log records have been indexed.
func (ix *Index) Count() (int, error) {
	var n uint64
	err := ix.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(BucketMeta).Get(keyRecords); len(v) == 8 {
			n = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return 0, verr.E(verr.ErrStorage, "count", ix.path, err)
	}
	return int(n), nil
}

// Sync brings the index up to date with src. New records are indexed
// incrementally. An index that is ahead of the log, or whose last indexed
// record no longer matches the log at that position, is rebuilt.
func (ix *Index) Sync(src Source) error {
	indexed, tail, err := ix.state()
	if err != nil {
		return err
	}
	n, err := src.Len()
	if err != nil {
		return err
	}

	stale := indexed > n
	if !stale && indexed > 0 {
		rec, err := src.ReadAt(indexed - 1)
		if err != nil {
			return err
		}
		stale = !bytes.Equal(fingerprint(rec), tail)
	}
	if stale {
		ix.log.WithFields(logrus.Fields{"indexed": indexed, "records": n}).Warn("index does not match log, rebuilding")
		if err := ix.Reset(); err != nil {
			return err
		}
		indexed = 0
	}
	if indexed == n {
		return nil
	}

	err = ix.db.Update(func(tx *bbolt.Tx) error {
		files := tx.Bucket(BucketFiles)
		var last history.Record
		for i := indexed; i < n; i++ {
			rec, err := src.ReadAt(i)
			if err != nil {
				return err
			}
			key := []byte(rec.Filename)
			old := files.Get(key)
			val := make([]byte, len(old), len(old)+8)
			copy(val, old)
			val = binary.BigEndian.AppendUint64(val, uint64(i))
			if err := files.Put(key, val); err != nil {
				return errors.Wrapf(err, "indexing record %d", i)
			}
			last = rec
		}
		meta := tx.Bucket(BucketMeta)
		if err := meta.Put(keyTail, fingerprint(last)); err != nil {
			return err
		}
		return meta.Put(keyRecords, binary.BigEndian.AppendUint64(nil, uint64(n)))
	})
	if err != nil {
		if verr.KindOf(err) != nil {
			return err
		}
		return verr.E(verr.ErrStorage, "sync index", ix.path, err)
	}
	ix.log.WithFields(logrus.Fields{"from": indexed, "to": n}).Debug("index synced")
	return nil
}

// state returns the indexed record count and the stored tail fingerprint.
func (ix *Index) state() (int, []byte, error) {
	var (
		n    uint64
		tail []byte
	)
	err := ix.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(BucketMeta)
		if v := meta.Get(keyRecords); len(v) == 8 {
			n = binary.BigEndian.Uint64(v)
		}
		tail = append(tail, meta.Get(keyTail)...)
		return nil
	})
	if err != nil {
		return 0, nil, verr.E(verr.ErrStorage, "sync index", ix.path, err)
	}
	return int(n), tail, nil
}

func fingerprint(rec history.Record) []byte {
	fp := make([]byte, 0, len(rec.Hash)+len(rec.Filename))
	fp = append(fp, rec.Hash[:]...)
	return append(fp, rec.Filename...)
}

// Positions returns the 0-based log positions of name's records, in log
// order. An unknown name yields an empty slice.
func (ix *Index) Positions(name string) ([]int, error) {
	var out []int
	err := ix.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(BucketFiles).Get([]byte(name))
		if len(v)%8 != 0 {
			return verr.Errorf(verr.ErrCorruption, "positions", ix.path, "entry for %q is %d bytes", name, len(v))
		}
		out = make([]int, 0, len(v)/8)
		for i := 0; i < len(v); i += 8 {
			out = append(out, int(binary.BigEndian.Uint64(v[i:])))
		}
		return nil
	})
	if err != nil {
		if verr.KindOf(err) != nil {
			return nil, err
		}
		return nil, verr.E(verr.ErrStorage, "positions", ix.path, err)
	}
	return out, nil
}

// Reset drops all indexed data.
func (ix *Index) Reset() error {
	err := ix.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{BucketFiles, BucketMeta} {
			if err := tx.DeleteBucket(b); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return verr.E(verr.ErrStorage, "reset index", ix.path, err)
	}
	return nil
}
