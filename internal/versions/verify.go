package versions

import (
	"github.com/javanhut/vers/internal/cas"
	"github.com/javanhut/vers/internal/history"
	"github.com/javanhut/vers/internal/verr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// blobLister is implemented by blob stores that can enumerate their keys.
type blobLister interface {
	List(fn func(cas.Hash) error) error
}

// tempCleaner is implemented by blob stores that can leave temp files
// behind when a write is interrupted.
type tempCleaner interface {
	ListTemp() ([]string, error)
	RemoveTemp(name string) error
}

// partialer is implemented by logs that can report a torn tail.
type partialer interface {
	Partial() (int64, error)
}

// Dangling is a record whose blob is missing or does not match its hash.
type Dangling struct {
	Index  int
	Record history.Record
	Reason error
}

// Report is the result of Verify.
type Report struct {
	Records      int
	Blobs        int
	Dangling     []Dangling
	Orphans      []cas.Hash
	PartialBytes int64
	// Temps are temp files left in the blob store by interrupted adds.
	Temps []string
	// LogErr is set when the log could not be read to the end.
	LogErr error
}

// OK reports whether the repository is consistent. A torn tail and
// leftover temp files are not inconsistencies: readers ignore both.
func (r *Report) OK() bool {
	return r.LogErr == nil && len(r.Dangling) == 0 && len(r.Orphans) == 0
}

// Err summarizes the problems found as a corruption error, or nil.
func (r *Report) Err() error {
	if r.LogErr != nil {
		return r.LogErr
	}
	if r.OK() {
		return nil
	}
	return verr.E(verr.ErrCorruption, "verify", "",
		errors.Errorf("%d dangling record(s), %d orphan blob(s)", len(r.Dangling), len(r.Orphans)))
}

// Verify checks that every record has an intact blob and every blob is
// referenced by some record.
func (m *Manager) Verify() (*Report, error) {
	var report *Report
	err := m.withLock(true, func() error {
		var err error
		report, err = m.verify()
		return err
	})
	return report, err
}

func (m *Manager) verify() (*Report, error) {
	report := &Report{}
	referenced := map[cas.Hash]bool{}

	i := 0
	for rec, err := range m.log.Scan() {
		if err != nil {
			if verr.KindOf(err) != verr.ErrCorruption {
				return nil, err
			}
			report.LogErr = err
			break
		}
		referenced[rec.Hash] = true

		if _, err := m.blobs.Get(rec.Hash); err != nil {
			switch verr.KindOf(err) {
			case verr.ErrNotFound, verr.ErrCorruption:
				report.Dangling = append(report.Dangling, Dangling{Index: i, Record: rec, Reason: err})
			default:
				return nil, err
			}
		}
		i++
	}
	report.Records = i

	if p, ok := m.log.(partialer); ok {
		n, err := p.Partial()
		if err != nil {
			return nil, err
		}
		report.PartialBytes = n
	}

	if c, ok := m.blobs.(tempCleaner); ok {
		temps, err := c.ListTemp()
		if err != nil {
			return nil, err
		}
		report.Temps = temps
	}

	if l, ok := m.blobs.(blobLister); ok {
		err := l.List(func(h cas.Hash) error {
			report.Blobs++
			if !referenced[h] {
				report.Orphans = append(report.Orphans, h)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	m.logger.WithFields(logrus.Fields{
		"records":  report.Records,
		"blobs":    report.Blobs,
		"dangling": len(report.Dangling),
		"orphans":  len(report.Orphans),
		"temps":    len(report.Temps),
	}).Debug("verify finished")
	return report, nil
}

// Pruned lists what PruneOrphans removed.
type Pruned struct {
	Blobs []cas.Hash
	Temps []string
}

// PruneOrphans deletes blobs no record references, along with temp files
// left by interrupted adds. It refuses to run when the log cannot be read
// completely, since references past the damage would be missed.
func (m *Manager) PruneOrphans() (*Pruned, error) {
	pruned := &Pruned{}
	err := m.withLock(false, func() error {
		report, err := m.verify()
		if err != nil {
			return err
		}
		if report.LogErr != nil {
			return errors.Wrap(report.LogErr, "refusing to prune")
		}
		for _, h := range report.Orphans {
			if err := m.blobs.Delete(h); err != nil {
				return err
			}
			m.logger.WithField("hash", h.String()).Info("orphan blob removed")
			pruned.Blobs = append(pruned.Blobs, h)
		}
		// Add holds the lock exclusively, so no temp file here is in use.
		if c, ok := m.blobs.(tempCleaner); ok {
			for _, name := range report.Temps {
				if err := c.RemoveTemp(name); err != nil {
					return err
				}
				m.logger.WithField("name", name).Info("leftover temp file removed")
				pruned.Temps = append(pruned.Temps, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pruned, nil
}
