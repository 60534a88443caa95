package normalize

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"CatalogSync/internal/identity"
	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	e, err := identity.NewDefaultExtractor()
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewNormalizer(e, logger)
}

func ts(s string) *time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return &t
}

func TestHumanize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"wsop-2007-11-me-day1a", "WSOP 2007 11 Main Event Day1a"},
		{"wsope_2008_nlh_ft", "WSOPE 2008 NLH Final Table"},
		{"10-wsop-2024-be-ev-21", "10 WSOP 2024 Be Event 21"},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Humanize(tt.in), tt.in)
	}
}

func TestNormalizeDropsMalformedAndHidden(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	res := n.Normalize(model.ProvenanceFilesystem, []*model.RawRecord{
		{NaturalKey: "/nas/WSOP/2008/WSOPE08_Episode_03.mov", FileName: "WSOPE08_Episode_03.mov"},
		{NaturalKey: "/nas/WSOP/2008/._WSOPE08_Episode_03.mov", FileName: "._WSOPE08_Episode_03.mov"},
		{NaturalKey: "   ", FileName: "orphan.mov"},
		nil,
		{NaturalKey: "/nas/misc/STREAM_01.mp4", FileName: "STREAM_01.mp4"},
	})

	assert.Equal(t, 5, res.Stats.Input)
	assert.Equal(t, 2, res.Stats.Malformed)
	assert.Equal(t, 1, res.Stats.Hidden)
	assert.Equal(t, 2, res.Stats.Emitted)
	assert.Equal(t, 1, res.Stats.Unresolved)
	require.Len(t, res.Entries, 2)
	for _, e := range res.Entries {
		assert.Equal(t, model.ProvenanceFilesystem, e.Provenance)
		assert.Equal(t, model.BuildEntryID(model.ProvenanceFilesystem, e.NaturalKey), e.EntryID)
		assert.NotEmpty(t, e.FileName)
	}
}

func TestNormalizeDisplayNameFallback(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	res := n.Normalize(model.ProvenanceStreaming, []*model.RawRecord{
		{NaturalKey: "https://stream.example/v/1", Title: "Wsop 2007 4 Me Day1a", Slug: "wsop-2007-04-me-day1a"},
		{NaturalKey: "https://stream.example/v/2", Slug: "wsop-2007-11-me-day1a"},
		{NaturalKey: "https://stream.example/v/3", FileName: "raw_file.mp4"},
	})
	byKey := make(map[string]*model.CatalogEntry)
	for _, e := range res.Entries {
		byKey[e.NaturalKey] = e
	}

	assert.Equal(t, "Wsop 2007 4 Me Day1a", byKey["https://stream.example/v/1"].DisplayName)
	assert.Equal(t, "WSOP 2007 11 Main Event Day1a", byKey["https://stream.example/v/2"].DisplayName)
	assert.Equal(t, "raw_file.mp4", byKey["https://stream.example/v/3"].DisplayName)

	// 标题优先于 slug 中的集数
	assert.Equal(t, 4, byKey["https://stream.example/v/1"].Identity.Episode)
	assert.Equal(t, 11, byKey["https://stream.example/v/2"].Identity.Episode)
}

func TestNormalizeDedupeNewerWins(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	key := "/nas/WSOP/2015/WSOP 2015 Main Event Day 1A Part 2.mp4"
	older := &model.RawRecord{NaturalKey: key, FileName: "old.mp4", ModifiedAt: ts("2024-01-01T00:00:00Z")}
	newer := &model.RawRecord{NaturalKey: key, FileName: "new.mp4", ModifiedAt: ts("2024-06-01T00:00:00Z")}

	for _, order := range [][]*model.RawRecord{{older, newer}, {newer, older}} {
		res := n.Normalize(model.ProvenanceFilesystem, order)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, "new.mp4", res.Entries[0].FileName)
		assert.Equal(t, 1, res.Stats.Duplicates)
	}
}

func TestNormalizeOrderIndependent(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raws := []*model.RawRecord{
		{NaturalKey: "ext-1", Title: "WSOP 2015 Main Event Day 1A"},
		{NaturalKey: "ext-2", Title: "WSOP Europe 2008 Episode 3"},
		{NaturalKey: "ext-3", Title: "HCL Cash Game"},
		{NaturalKey: "ext-2", Title: "WSOP Europe 2008 Episode 3 (dup)"},
	}
	reversed := make([]*model.RawRecord, len(raws))
	for i := range raws {
		reversed[len(raws)-1-i] = raws[i]
	}

	a, err := json.Marshal(n.Normalize(model.ProvenanceExternal, raws).Entries)
	require.NoError(t, err)
	b, err := json.Marshal(n.Normalize(model.ProvenanceExternal, reversed).Entries)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))

	res := n.Normalize(model.ProvenanceExternal, raws)
	for i := 1; i < len(res.Entries); i++ {
		assert.Less(t, res.Entries[i-1].EntryID, res.Entries[i].EntryID)
	}
}

func TestNormalizeRecordsMatchedRules(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	res := n.Normalize(model.ProvenanceFilesystem, []*model.RawRecord{
		{NaturalKey: "/nas/WSOP/2008/WSOPE08_Episode_03.mov", FileName: "WSOPE08_Episode_03.mov"},
		{NaturalKey: "/nas/misc/STREAM_01.mp4", FileName: "STREAM_01.mp4"},
	})
	require.Len(t, res.Entries, 2)
	for _, e := range res.Entries {
		if e.FileName == "STREAM_01.mp4" {
			assert.Empty(t, e.MatchedRules)
			continue
		}
		assert.Equal(t, []string{"brand_europe", "year_compact", "episode_word"}, e.MatchedRules)
	}
}
