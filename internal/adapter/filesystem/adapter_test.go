package filesystem

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"CatalogSync/internal/config"
	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestToRecords(t *testing.T) {
	t.Parallel()
	mt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	recs := ToRecords([]model.FileDescriptor{
		{FileName: "STREAM_01.mp4", Path: "/nas/STREAM/STREAM_01.mp4", SizeBytes: 1024, ModifiedAt: mt, Extension: ".mp4"},
		{FileName: "undated.mov", Path: "/nas/undated.mov"},
	})
	require.Len(t, recs, 2)

	assert.Equal(t, "/nas/STREAM/STREAM_01.mp4", recs[0].NaturalKey)
	assert.Equal(t, "STREAM_01.mp4", recs[0].FileName)
	require.NotNil(t, recs[0].SizeBytes)
	assert.Equal(t, int64(1024), *recs[0].SizeBytes)
	require.NotNil(t, recs[0].ModifiedAt)
	assert.True(t, mt.Equal(*recs[0].ModifiedAt))
	assert.Nil(t, recs[1].ModifiedAt)

	var back model.FileDescriptor
	require.NoError(t, json.Unmarshal(recs[0].Raw, &back))
	assert.Equal(t, "/nas/STREAM/STREAM_01.mp4", back.Path)
}

func TestFetchRecordsFromDump(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "files.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"filename": "WSOPE08_Episode_03.mov", "path": "/nas/WSOP/WSOPE08_Episode_03.mov", "size_bytes": 10, "modified_at": "2023-05-01T00:00:00Z", "extension": ".mov"}
	]`), 0o600))

	a, err := NewFilesystemAdapter(&config.SourceConfig{Path: path}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceFilesystem, a.Provenance())

	recs, err := a.FetchRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "WSOPE08_Episode_03.mov", recs[0].FileName)
}

func TestFetchRecordsFromScan(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "WSOP"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "WSOP", "WSOP 2015 Main Event Day 1A Part 2.mp4"), []byte("v"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "WSOP", "readme.md"), []byte("x"), 0o644))

	a, err := NewFilesystemAdapter(&config.SourceConfig{ScanRoot: root}, quietLogger())
	require.NoError(t, err)

	recs, err := a.FetchRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "WSOP 2015 Main Event Day 1A Part 2.mp4", recs[0].FileName)
	assert.NotNil(t, recs[0].ModifiedAt)
}
