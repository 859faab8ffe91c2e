package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCapture creates a capture file and pins its modification time so
// newest-first ordering is deterministic.
func writeCapture(t *testing.T, dir, name string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func TestScanAll_ParsesTokensAndOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 11, 14, 1, 0, 0, 0, time.Local)
	writeCapture(t, dir, "20241113_235000_exp5000ms.png", base.Add(-time.Hour))
	writeCapture(t, dir, "20241114_001000_exp12000ms.png", base)

	records, err := New(dir).ScanAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first
	assert.Equal(t, "20241114_001000_exp12000ms.png", records[0].Filename)

	require.NotNil(t, records[0].Timestamp)
	assert.Equal(t, time.Date(2024, 11, 14, 0, 10, 0, 0, time.Local), *records[0].Timestamp)
	require.NotNil(t, records[0].ExposureMs)
	assert.Equal(t, 12000, *records[0].ExposureMs)
}

func TestScanAll_MissingTokensYieldUnsetFields(t *testing.T) {
	dir := t.TempDir()
	// Matches the glob but carries no timestamp token
	writeCapture(t, dir, "manual_exp100ms.png", time.Now())

	records, err := New(dir).ScanAll()
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Nil(t, records[0].Timestamp)
	require.NotNil(t, records[0].ExposureMs)
	assert.Equal(t, 100, *records[0].ExposureMs)
	// Bucketing fell back to the modification time
	assert.NotEmpty(t, records[0].SessionLabel)
}

func TestScanAll_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumb.png"), []byte("x"), 0o644))
	writeCapture(t, dir, "20241113_235000_exp5000ms.png", time.Now())

	records, err := New(dir).ScanAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestScanAll_MissingDirectoryIsEmpty(t *testing.T) {
	records, err := New(filepath.Join(t.TempDir(), "nope")).ScanAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSessionLabel_NoonToNoonBucketing(t *testing.T) {
	// Given captures either side of midnight and one after the next noon
	beforeMidnight := time.Date(2024, 11, 13, 23, 50, 0, 0, time.Local)
	afterMidnight := time.Date(2024, 11, 14, 0, 10, 0, 0, time.Local)
	afterNoon := time.Date(2024, 11, 14, 12, 5, 0, 0, time.Local)

	// Then the pair around midnight shares a session
	assert.Equal(t, "2024-11-13", SessionLabel(beforeMidnight))
	assert.Equal(t, "2024-11-13", SessionLabel(afterMidnight))
	// And the afternoon capture starts the next session
	assert.Equal(t, "2024-11-14", SessionLabel(afterNoon))
}

func TestDeleteBySessionLabels_PreservesNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 11, 15, 1, 0, 0, 0, time.Local)
	// 5 records across two sessions; newest is in session 2024-11-14
	writeCapture(t, dir, "20241113_220000_exp100ms.png", base.Add(-4*time.Hour))
	writeCapture(t, dir, "20241113_230000_exp100ms.png", base.Add(-3*time.Hour))
	writeCapture(t, dir, "20241114_220000_exp100ms.png", base.Add(-2*time.Hour))
	writeCapture(t, dir, "20241114_230000_exp100ms.png", base.Add(-time.Hour))
	newest := writeCapture(t, dir, "20241115_003000_exp100ms.png", base)

	// When deleting the session that contains the 2nd-newest record (and the
	// newest record too: 00:30 on the 15th belongs to session 2024-11-14)
	result, err := New(dir).DeleteBySessionLabels([]string{"2024-11-14"})
	require.NoError(t, err)

	// Then exactly the two non-newest records of that session are removed
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 2, result.DeletedCount)
	assert.Equal(t, []string{"2024-11-14"}, result.DeletedLabels)
	assert.Equal(t, "20241115_003000_exp100ms.png", result.PreservedFilename)
	_, statErr := os.Stat(newest)
	assert.NoError(t, statErr)

	remaining, err := New(dir).ScanAll()
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestDeleteBySessionLabels_SingleRecordFromRequestedSession(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 11, 15, 1, 0, 0, 0, time.Local)
	writeCapture(t, dir, "20241112_220000_exp100ms.png", base.Add(-4*time.Hour))
	writeCapture(t, dir, "20241113_220000_exp100ms.png", base.Add(-3*time.Hour))
	writeCapture(t, dir, "20241113_230000_exp100ms.png", base.Add(-2*time.Hour))
	writeCapture(t, dir, "20241114_220000_exp100ms.png", base.Add(-time.Hour))
	writeCapture(t, dir, "20241114_230000_exp100ms.png", base)

	// Deleting the label holding only the 2nd-newest record removes one file
	result, err := New(dir).DeleteBySessionLabels([]string{"2024-11-14"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.DeletedCount)
	assert.Equal(t, "20241114_230000_exp100ms.png", result.PreservedFilename)
}

func TestDeleteBySessionLabels_ReportsPartialOnFailure(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 11, 15, 1, 0, 0, 0, time.Local)
	writeCapture(t, dir, "20241113_220000_exp100ms.png", base.Add(-3*time.Hour))
	// A non-empty directory matching the capture glob cannot be removed with
	// os.Remove, so this record's deletion fails while the rest proceed
	stubborn := filepath.Join(dir, "20241113_230000_exp100ms.png")
	require.NoError(t, os.Mkdir(stubborn, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stubborn, "nested"), []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(stubborn, base.Add(-2*time.Hour), base.Add(-2*time.Hour)))
	writeCapture(t, dir, "20241114_220000_exp100ms.png", base)

	result, err := New(dir).DeleteBySessionLabels([]string{"2024-11-13"})
	require.NoError(t, err)

	// The batch completes: the removable record is gone, the stuck one is
	// reported, and the status reflects the mix
	assert.Equal(t, "partial", result.Status)
	assert.Equal(t, 1, result.DeletedCount)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0], "20241113_230000_exp100ms.png")
	assert.Equal(t, []string{"2024-11-13"}, result.DeletedLabels)

	_, statErr := os.Stat(filepath.Join(dir, "20241113_220000_exp100ms.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeleteBySessionLabels_EmptyCatalog(t *testing.T) {
	_, err := New(t.TempDir()).DeleteBySessionLabels([]string{"2024-11-14"})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestDeleteBySessionLabels_NoLabels(t *testing.T) {
	_, err := New(t.TempDir()).DeleteBySessionLabels(nil)
	assert.Error(t, err)
}

func TestParseFilename(t *testing.T) {
	ts, exposure := ParseFilename("20241113_235000_exp5000ms.png")
	require.NotNil(t, ts)
	assert.Equal(t, 2024, ts.Year())
	require.NotNil(t, exposure)
	assert.Equal(t, 5000, *exposure)

	ts, exposure = ParseFilename("unrelated.png")
	assert.Nil(t, ts)
	assert.Nil(t, exposure)

	// Malformed date token is tolerated
	ts, _ = ParseFilename("99999999_999999_exp10ms.png")
	assert.Nil(t, ts)
}
