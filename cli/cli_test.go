package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/javanhut/vers/internal/cas"
	"github.com/javanhut/vers/internal/verr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t    *testing.T
	dir  string
	root string
}

func newHarness(t *testing.T) *harness {
	t.Setenv("VERS_LOG_LEVEL", "")
	t.Setenv("VERS_ROOT", "")
	dir := t.TempDir()
	return &harness{t: t, dir: dir, root: filepath.Join(dir, ".versions")}
}

func (h *harness) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	full := append([]string{"--root", h.root, "--no-color"}, args...)
	code := run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) file(name, content string) string {
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCLIWorkflow(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("init")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Initialized")

	code, out, _ = h.run("init")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "already initialized")

	f := h.file("notes.txt", "first")
	code, out, _ = h.run("add", f, "first draft")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Added")

	code, out, _ = h.run("add", f, "again")
	assert.Equal(t, 0, code, "unchanged content is a successful no-op")
	assert.Contains(t, out, "Unchanged")

	h.file("notes.txt", "second")
	code, _, _ = h.run("add", f, "second draft")
	require.Equal(t, 0, code)

	code, out, _ = h.run("list", f)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1 "+cas.SHA256.Sum([]byte("first")).String()[:12]))
	assert.True(t, strings.HasSuffix(lines[0], "first draft"))
	assert.True(t, strings.HasPrefix(lines[1], "2 "))

	code, out, _ = h.run("list", "--full")
	require.Equal(t, 0, code)
	assert.Contains(t, out, cas.SHA256.Sum([]byte("second")).String())
	assert.Contains(t, out, f)

	dest := filepath.Join(h.dir, "restored.txt")
	code, _, _ = h.run("get", f, "1", dest)
	require.Equal(t, 0, code)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	code, _, _ = h.run("get", f, "1")
	require.Equal(t, 0, code)
	data, err = os.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	code, out, _ = h.run("verify")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "OK")

	code, out, _ = h.run("list", filepath.Join(h.dir, "untracked"))
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No versions")
}

func TestCLIExitCodes(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("list")
	assert.Equal(t, verr.ExitNotFound, code, "not initialized")
	assert.Contains(t, errOut, "not initialized")

	require.Equal(t, 0, first(h.run("init")))
	f := h.file("f", "content")
	require.Equal(t, 0, first(h.run("add", f, "c")))

	assert.Equal(t, verr.ExitNotFound, first(h.run("add", filepath.Join(h.dir, "missing"), "c")))
	assert.Equal(t, verr.ExitInvalidInput, first(h.run("add", f)))
	assert.Equal(t, verr.ExitInvalidInput, first(h.run("add", h.dir, "c")))
	assert.Equal(t, verr.ExitInvalidInput, first(h.run("get", f, "one")))
	assert.Equal(t, verr.ExitInvalidInput, first(h.run("list", "--bogus")))
	assert.Equal(t, verr.ExitNotFound, first(h.run("get", f, "99")))
	assert.Equal(t, verr.ExitValidation, first(h.run("add", f, strings.Repeat("x", 300))))

	require.NoError(t, os.Remove(filepath.Join(h.root, cas.SHA256.Sum([]byte("content")).String())))
	assert.Equal(t, verr.ExitCorruption, first(h.run("get", f, "1", filepath.Join(h.dir, "out"))))
	code, out, _ := h.run("verify")
	assert.Equal(t, verr.ExitCorruption, code)
	assert.Contains(t, out, "dangling")
}

func TestCLIVerifyPrune(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, first(h.run("init")))

	orphan := cas.SHA256.Sum([]byte("orphan"))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, orphan.String()), []byte("orphan"), 0600))

	code, out, _ := h.run("verify")
	assert.Equal(t, verr.ExitCorruption, code)
	assert.Contains(t, out, "orphan: "+orphan.String())

	leftover := cas.TempPrefix + orphan.String()[:12] + "-1"
	require.NoError(t, os.WriteFile(filepath.Join(h.root, leftover), []byte("orp"), 0600))
	code, out, _ = h.run("verify")
	assert.Equal(t, verr.ExitCorruption, code)
	assert.Contains(t, out, "temp: "+leftover)

	code, out, _ = h.run("verify", "--prune")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Pruned 1 orphan blob(s), 1 temp file(s)")
	_, err := os.Stat(filepath.Join(h.root, leftover))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 0, first(h.run("verify")))
}

func TestCLIInitBlake3(t *testing.T) {
	h := newHarness(t)
	code, out, _ := h.run("init", "--hash", "blake3")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "blake3")

	f := h.file("f", "data")
	require.Equal(t, 0, first(h.run("add", f, "")))
	_, err := os.Stat(filepath.Join(h.root, cas.BLAKE3.Sum([]byte("data")).String()))
	assert.NoError(t, err)

	assert.Equal(t, verr.ExitInvalidInput, first(newHarness(t).run("init", "--hash", "md5")))
}

func first(code int, _, _ string) int { return code }
