package history

import (
	"bufio"
	"io"
	"iter"
	"os"

	"github.com/javanhut/vers/internal/cas"
	"github.com/javanhut/vers/internal/verr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// VersionLog is the append-only sequence of version records.
type VersionLog interface {
	// Append adds rec at the end of the log. Either the whole record is
	// durably written or the log is left as it was.
	Append(rec Record) error

	// Scan yields records in log order. Each call re-reads from the start.
	Scan() iter.Seq2[Record, error]

	// FindByFilename returns the records for name in log order. The
	// 1-based position in the result is the version number.
	FindByFilename(name string) ([]Record, error)

	// Exists reports whether some record matches both name and hash.
	Exists(name string, hash cas.Hash) (bool, error)

	// ExistsHash reports whether some record references hash.
	ExistsHash(hash cas.Hash) (bool, error)

	// Len returns the number of complete records.
	Len() (int, error)

	// ReadAt returns the record at 0-based position i.
	ReadAt(i int) (Record, error)
}

// Filesystem hooks, replaced in tests to simulate failures.
var (
	writeAt = func(f *os.File, b []byte, off int64) (int, error) { return f.WriteAt(b, off) }
	syncF   = func(f *os.File) error { return f.Sync() }
)

// FileLog is a VersionLog stored as a flat file of fixed-size records.
type FileLog struct {
	path string
	log  *logrus.Logger
}

var _ VersionLog = (*FileLog)(nil)

// NewFileLog returns a log backed by the file at path. The file is not
// touched until the first operation.
func NewFileLog(path string, logger *logrus.Logger) *FileLog {
	if logger == nil {
		logger = logrus.New()
	}
	return &FileLog{path: path, log: logger}
}

// Create makes an empty log file at path unless one already exists.
// It reports whether a file was created.
func Create(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, verr.E(verr.ErrStorage, "create log", path, err)
	}
	if err := f.Close(); err != nil {
		return true, verr.E(verr.ErrStorage, "create log", path, err)
	}
	return true, nil
}

// Path returns the log file path.
func (l *FileLog) Path() string { return l.path }

func (l *FileLog) openErr(op string, err error) error {
	if os.IsNotExist(err) {
		return verr.E(verr.ErrNotFound, op, l.path, err)
	}
	return verr.E(verr.ErrStorage, op, l.path, err)
}

// Append implements VersionLog.Append.
func (l *FileLog) Append(rec Record) error {
	buf, err := rec.Encode()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_RDWR, 0)
	if err != nil {
		return l.openErr("append", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return verr.E(verr.ErrStorage, "append", l.path, errors.Wrap(err, "stat"))
	}
	size := info.Size()

	// A crash mid-append can leave a partial record at the tail. Scan
	// already treats it as end-of-data; drop it so the new record lands on
	// a record boundary.
	if rem := size % RecordSize; rem != 0 {
		l.log.WithFields(logrus.Fields{"path": l.path, "bytes": rem}).Warn("dropping partial record at end of log")
		size -= rem
		if err := f.Truncate(size); err != nil {
			return verr.E(verr.ErrStorage, "append", l.path, errors.Wrap(err, "truncating partial record"))
		}
	}

	if _, err := writeAt(f, buf, size); err != nil {
		l.restore(f, size)
		return verr.E(verr.ErrStorage, "append", l.path, errors.Wrap(err, "writing record"))
	}
	if err := syncF(f); err != nil {
		l.restore(f, size)
		return verr.E(verr.ErrStorage, "append", l.path, errors.Wrap(err, "syncing log"))
	}

	l.log.WithFields(logrus.Fields{
		"filename": rec.Filename,
		"hash":     rec.Hash.String(),
		"index":    size / RecordSize,
	}).Debug("record appended")
	return nil
}

// restore cuts the log back to size after a failed append.
func (l *FileLog) restore(f *os.File, size int64) {
	if err := f.Truncate(size); err != nil {
		l.log.WithFields(logrus.Fields{"path": l.path, "size": size, "error": err}).Error("restoring log after failed append")
	}
}

// Scan implements VersionLog.Scan. A short read at the end of the file is
// an interrupted append and ends the sequence; a record that does not
// decode yields a corruption error and ends the sequence.
func (l *FileLog) Scan() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		f, err := os.Open(l.path)
		if err != nil {
			yield(Record{}, l.openErr("scan", err))
			return
		}
		defer f.Close()

		r := bufio.NewReaderSize(f, RecordSize)
		buf := make([]byte, RecordSize)
		for i := 0; ; i++ {
			n, err := io.ReadFull(r, buf)
			switch {
			case err == io.EOF:
				return
			case err == io.ErrUnexpectedEOF:
				l.log.WithFields(logrus.Fields{"path": l.path, "record": i, "bytes": n}).Warn("ignoring partial record at end of log")
				return
			case err != nil:
				yield(Record{}, verr.E(verr.ErrStorage, "scan", l.path, errors.Wrapf(err, "reading record %d", i)))
				return
			}

			rec, err := Decode(buf)
			if err != nil {
				yield(Record{}, errors.Wrapf(err, "%s: record %d", l.path, i))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// FindByFilename implements VersionLog.FindByFilename.
func (l *FileLog) FindByFilename(name string) ([]Record, error) {
	var out []Record
	for rec, err := range l.Scan() {
		if err != nil {
			return nil, err
		}
		if rec.Filename == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Exists implements VersionLog.Exists.
func (l *FileLog) Exists(name string, hash cas.Hash) (bool, error) {
	for rec, err := range l.Scan() {
		if err != nil {
			return false, err
		}
		if rec.Filename == name && rec.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

// ExistsHash implements VersionLog.ExistsHash.
func (l *FileLog) ExistsHash(hash cas.Hash) (bool, error) {
	for rec, err := range l.Scan() {
		if err != nil {
			return false, err
		}
		if rec.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

// Len implements VersionLog.Len.
func (l *FileLog) Len() (int, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return 0, l.openErr("len", err)
	}
	return int(info.Size() / RecordSize), nil
}

// Partial reports how many trailing bytes do not form a complete record.
func (l *FileLog) Partial() (int64, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return 0, l.openErr("stat", err)
	}
	return info.Size() % RecordSize, nil
}

// ReadAt implements VersionLog.ReadAt.
func (l *FileLog) ReadAt(i int) (Record, error) {
	if i < 0 {
		return Record{}, verr.Errorf(verr.ErrNotFound, "read", l.path, "no record %d", i)
	}
	f, err := os.Open(l.path)
	if err != nil {
		return Record{}, l.openErr("read", err)
	}
	defer f.Close()

	buf := make([]byte, RecordSize)
	_, err = f.ReadAt(buf, int64(i)*RecordSize)
	if err == io.EOF {
		return Record{}, verr.Errorf(verr.ErrNotFound, "read", l.path, "no record %d", i)
	}
	if err != nil {
		return Record{}, verr.E(verr.ErrStorage, "read", l.path, errors.Wrapf(err, "reading record %d", i))
	}

	rec, err := Decode(buf)
	if err != nil {
		return Record{}, errors.Wrapf(err, "%s: record %d", l.path, i)
	}
	return rec, nil
}
