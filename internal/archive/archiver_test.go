package archive

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/filestore"
	"github.com/HendryAvila/twining/internal/ids"
)

func newTestArchiver(t *testing.T) (*Archiver, *blackboard.Engine) {
	t.Helper()
	dir := t.TempDir()
	board := blackboard.NewEngine(blackboard.NewStore(dir))
	return New(dir, board), board
}

func record(t *testing.T, board *blackboard.Engine, typ, summary string) blackboard.Entry {
	t.Helper()
	e, err := board.Record(context.Background(), blackboard.Entry{EntryType: typ, Summary: summary})
	require.NoError(t, err)
	return e
}

func TestArchive_KeepsDecisionsMovesTheRest(t *testing.T) {
	a, board := newTestArchiver(t)
	ctx := context.Background()

	dec := record(t, board, blackboard.TypeDecision, "Use JWT")
	record(t, board, blackboard.TypeFinding, "f1")
	record(t, board, blackboard.TypeFinding, "f2")
	record(t, board, blackboard.TypeWarning, "w1")

	before := ids.Format(time.Now().Add(time.Hour))
	res, err := a.Archive(ctx, Input{Before: before})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ArchivedCount)
	assert.True(t, strings.HasSuffix(res.ArchiveFile, before[:10]+"-blackboard.jsonl"))
	assert.Contains(t, res.Summary, "Archive summary: 3 entries archived.")
	assert.Contains(t, res.Summary, "finding: 2 entries (f2; f1).")

	archived, err := filestore.ReadJSONL[blackboard.Entry](res.ArchiveFile)
	require.NoError(t, err)
	assert.Len(t, archived, 3)

	live, err := board.Store().All()
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, dec.ID, live[0].ID)
	assert.Equal(t, "Archive: 3 entries archived", live[1].Summary)
	assert.Equal(t, []string{"archive"}, live[1].Tags)

	files, err := a.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{res.ArchiveFile}, files)
}

func TestArchive_WithoutKeepingDecisions(t *testing.T) {
	a, board := newTestArchiver(t)
	record(t, board, blackboard.TypeDecision, "Use JWT")

	no := false
	res, err := a.Archive(context.Background(), Input{
		Before:        ids.Format(time.Now().Add(time.Hour)),
		KeepDecisions: &no,
		Summarize:     &no,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ArchivedCount)
	assert.Empty(t, res.Summary)

	live, _ := board.Store().All()
	assert.Empty(t, live)
}

func TestArchive_NothingToArchive(t *testing.T) {
	a, board := newTestArchiver(t)
	record(t, board, blackboard.TypeFinding, "fresh")

	res, err := a.Archive(context.Background(), Input{Before: "2000-01-01T00:00:00.000Z"})
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	live, _ := board.Store().All()
	assert.Len(t, live, 1)
}

func TestArchive_InvalidBefore(t *testing.T) {
	a, _ := newTestArchiver(t)
	_, err := a.Archive(context.Background(), Input{Before: "last week"})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestSummarize_Capped(t *testing.T) {
	var entries []blackboard.Entry
	for i := 0; i < 50; i++ {
		entries = append(entries, blackboard.Entry{
			EntryType: "type" + strings.Repeat("x", i),
			Summary:   strings.Repeat("s", 100),
		})
	}
	out := Summarize(entries)
	assert.Len(t, out, 2000)
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestSummarize_CapsMultibyteOnRuneBoundary(t *testing.T) {
	var entries []blackboard.Entry
	for i := 0; i < 18; i++ {
		entries = append(entries, blackboard.Entry{
			EntryType: "finding" + strings.Repeat("x", i),
			Summary:   strings.Repeat("é", 190),
		})
	}
	out := Summarize(entries)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 2000, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestNeedsArchive(t *testing.T) {
	cfg := config.Default()
	assert.False(t, NeedsArchive(499, cfg))
	assert.True(t, NeedsArchive(500, cfg))
	cfg.Archive.MaxBlackboardEntriesBeforeArchive = 0
	assert.False(t, NeedsArchive(10000, cfg))
}
