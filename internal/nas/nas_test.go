package nas

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// buildArchive 构造测试用归档目录
func buildArchive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"WSOP/2008/WSOPE08_Episode_03.mov":     "aaaa",
		"WSOP/2008/._WSOPE08_Episode_03.mov":   "x",
		"WSOP/2015/WSOP 2015 Main Event.mp4":   "bbbbbb",
		"WSOP/2015/notes.txt":                  "not a video",
		"STREAM/STREAM_01.MP4":                 "c",
		".trash/deleted.mp4":                   "d",
		"WSOP/.DS_Store":                       "",
		"HCL/Season3/Deep/Deeper/far_away.mp4": "e",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func TestScannerScan(t *testing.T) {
	t.Parallel()
	root := buildArchive(t)

	files, err := NewScanner(quietLogger()).Scan(context.Background(), root)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.FileName)
	}
	assert.ElementsMatch(t, []string{
		"WSOPE08_Episode_03.mov",
		"._WSOPE08_Episode_03.mov",
		"WSOP 2015 Main Event.mp4",
		"STREAM_01.MP4",
		"far_away.mp4",
	}, names)

	for _, f := range files {
		if f.FileName == "WSOP 2015 Main Event.mp4" {
			assert.Equal(t, int64(6), f.SizeBytes)
			assert.Equal(t, ".mp4", f.Extension)
			assert.True(t, filepath.IsAbs(filepath.FromSlash(f.Path)))
		}
		if f.FileName == "STREAM_01.MP4" {
			assert.Equal(t, ".mp4", f.Extension)
		}
	}
}

func TestScannerScanCancelled(t *testing.T) {
	t.Parallel()
	root := buildArchive(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(quietLogger()).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceFolders(t *testing.T) {
	t.Parallel()
	root := buildArchive(t)
	svc := NewService(root, 2, time.Minute, quietLogger())

	tree, err := svc.Folders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/", tree.Path)

	var childNames []string
	for _, c := range tree.Children {
		childNames = append(childNames, c.Name)
	}
	assert.Equal(t, []string{"HCL", "STREAM", "WSOP"}, childNames, "hidden folders skipped, sorted")

	stream := tree.Children[1]
	assert.Equal(t, "/STREAM", stream.Path)
	assert.Equal(t, 1, stream.FileCount)

	hcl := tree.Children[0]
	require.Len(t, hcl.Children, 1)
	season := hcl.Children[0]
	assert.Equal(t, 1, season.FolderCount, "counted even beyond max depth")
	assert.Empty(t, season.Children)

	again, err := svc.Folders(context.Background())
	require.NoError(t, err)
	assert.Same(t, tree, again, "served from cache")
}

func TestServiceFiles(t *testing.T) {
	t.Parallel()
	root := buildArchive(t)
	svc := NewService(root, 3, time.Minute, quietLogger())

	listing, err := svc.Files(context.Background(), "/WSOP/2008")
	require.NoError(t, err)
	assert.Equal(t, "/WSOP/2008", listing.Path)
	require.Equal(t, 1, listing.Total)
	assert.Equal(t, "WSOPE08_Episode_03.mov", listing.Files[0].Name)
	assert.Equal(t, "/WSOP/2008/WSOPE08_Episode_03.mov", listing.Files[0].Path)

	_, err = svc.Files(context.Background(), "/WSOP/1999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceRejectsTraversal(t *testing.T) {
	t.Parallel()
	svc := NewService(buildArchive(t), 3, time.Minute, quietLogger())

	for _, p := range []string{"../", "/WSOP/../../etc", `..\..\windows`} {
		_, err := svc.Files(context.Background(), p)
		assert.ErrorIs(t, err, ErrOutsideRoot, p)
	}
}

func TestServiceRejectsSymlinkOutsideRoot(t *testing.T) {
	t.Parallel()
	root := buildArchive(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.mp4"), []byte("s"), 0o644))
	if err := os.Symlink(outside, filepath.Join(root, "WSOP", "escape")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "WSOP", "2015"), filepath.Join(root, "latest")))
	svc := NewService(root, 3, time.Minute, quietLogger())

	_, err := svc.Resolve("/WSOP/escape")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = svc.Files(context.Background(), "/WSOP/escape")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	// 指向根目录内部的链接照常可用
	listing, err := svc.Files(context.Background(), "/latest")
	require.NoError(t, err)
	assert.Equal(t, 1, listing.Total)
	assert.Equal(t, "/latest", listing.Path)

	_, err = svc.Files(context.Background(), "/WSOP/escape/missing")
	assert.ErrorIs(t, err, ErrOutsideRoot, "missing path under an escaping link")
	_, err = svc.Files(context.Background(), "/latest/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceNotConfigured(t *testing.T) {
	t.Parallel()
	svc := NewService("", 3, time.Minute, quietLogger())

	_, err := svc.Folders(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Files(context.Background(), "/")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
