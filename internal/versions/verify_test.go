package versions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/vers/internal/cas"
	"github.com/javanhut/vers/internal/config"
	"github.com/javanhut/vers/internal/history"
	"github.com/javanhut/vers/internal/verr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyClean(t *testing.T) {
	r := newRepo(t)
	m := r.open(t)
	_, err := m.Add(r.write(t, "a", "1"), "")
	require.NoError(t, err)
	_, err = m.Add(r.write(t, "b", "1"), "")
	require.NoError(t, err)

	report, err := m.Verify()
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 1, report.Blobs)
}

func TestVerifyFindsDanglingAndOrphans(t *testing.T) {
	r := newRepo(t)
	m := r.open(t)
	f := r.write(t, "f", "kept")
	_, err := m.Add(f, "")
	require.NoError(t, err)
	g := r.write(t, "g", "tampered")
	_, err = m.Add(g, "")
	require.NoError(t, err)

	// Missing blob for f, modified blob for g, stray blob nobody references.
	entries, err := m.List("")
	require.NoError(t, err)
	require.NoError(t, os.Remove(r.cfg.Path(entries[0].Hash.String())))
	require.NoError(t, os.WriteFile(r.cfg.Path(entries[1].Hash.String()), []byte("changed"), 0600))
	orphan := cas.SHA256.Sum([]byte("orphan"))
	require.NoError(t, os.WriteFile(r.cfg.Path(orphan.String()), []byte("orphan"), 0600))

	report, err := m.Verify()
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.ErrorIs(t, report.Err(), verr.ErrCorruption)

	require.Len(t, report.Dangling, 2)
	assert.Equal(t, 0, report.Dangling[0].Index)
	assert.ErrorIs(t, report.Dangling[0].Reason, verr.ErrNotFound)
	assert.Equal(t, 1, report.Dangling[1].Index)
	assert.ErrorIs(t, report.Dangling[1].Reason, verr.ErrCorruption)
	assert.Equal(t, []cas.Hash{orphan}, report.Orphans)

	pruned, err := m.PruneOrphans()
	require.NoError(t, err)
	assert.Equal(t, []cas.Hash{orphan}, pruned.Blobs)
	assert.Empty(t, pruned.Temps)
	_, err = os.Stat(r.cfg.Path(orphan.String()))
	assert.True(t, os.IsNotExist(err))
}

func TestVerifyReportsPartialTail(t *testing.T) {
	r := newRepo(t)
	m := r.open(t)
	_, err := m.Add(r.write(t, "a", "1"), "")
	require.NoError(t, err)

	lf, err := os.OpenFile(r.cfg.Path(config.LogFile), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = lf.Write(make([]byte, 10))
	require.NoError(t, err)
	require.NoError(t, lf.Close())

	report, err := m.Verify()
	require.NoError(t, err)
	assert.EqualValues(t, 10, report.PartialBytes)
	assert.True(t, report.OK(), "a torn tail is recoverable")
}

func TestVerifyReportsAndPrunesTempFiles(t *testing.T) {
	r := newRepo(t)
	m := r.open(t)
	_, err := m.Add(r.write(t, "a", "1"), "")
	require.NoError(t, err)

	// A put that died between creating its temp file and the rename.
	leftover := cas.TempPrefix + "0123456789ab-42"
	require.NoError(t, os.WriteFile(r.cfg.Path(leftover), []byte("partial"), 0600))

	report, err := m.Verify()
	require.NoError(t, err)
	assert.Equal(t, []string{leftover}, report.Temps)
	assert.Equal(t, 1, report.Blobs, "temp files are not blobs")
	assert.True(t, report.OK())

	pruned, err := m.PruneOrphans()
	require.NoError(t, err)
	assert.Equal(t, []string{leftover}, pruned.Temps)
	assert.Empty(t, pruned.Blobs)
	_, err = os.Stat(r.cfg.Path(leftover))
	assert.True(t, os.IsNotExist(err))

	report, err = m.Verify()
	require.NoError(t, err)
	assert.Empty(t, report.Temps)
}

func TestPruneRefusesOnCorruptLog(t *testing.T) {
	r := newRepo(t)
	m := r.open(t)
	_, err := m.Add(r.write(t, "a", "1"), "")
	require.NoError(t, err)
	orphan := cas.SHA256.Sum([]byte("orphan"))
	require.NoError(t, os.WriteFile(r.cfg.Path(orphan.String()), []byte("orphan"), 0600))

	// Damage the hash field of the only record.
	lf, err := os.OpenFile(r.cfg.Path(config.LogFile), os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = lf.WriteAt([]byte("zz"), history.FilenameSize)
	require.NoError(t, err)
	require.NoError(t, lf.Close())

	report, err := m.Verify()
	require.NoError(t, err)
	assert.ErrorIs(t, report.LogErr, verr.ErrCorruption)

	_, err = m.PruneOrphans()
	assert.ErrorIs(t, err, verr.ErrCorruption)
	_, err = os.Stat(filepath.Join(r.cfg.Root, orphan.String()))
	assert.NoError(t, err, "nothing deleted")
}
