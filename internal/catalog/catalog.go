// Package catalog reads capture records off the image directory. The
// filename is the record format: a `YYYYMMDD_HHMMSS` timestamp token and an
// `exp<N>ms` exposure token embedded in an otherwise opaque name. Parsing is
// defensive; a file missing either token still yields a record.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// The serialization contract for filename-encoded metadata.
var (
	timestampToken = regexp.MustCompile(`(\d{8}_\d{6})`)
	exposureToken  = regexp.MustCompile(`exp(\d+)ms`)
)

// Record is one capture on disk.
type Record struct {
	Filename     string
	Path         string
	Timestamp    *time.Time
	ExposureMs   *int
	SizeBytes    int64
	Modified     time.Time
	SessionLabel string
}

// ErrNoImages is returned when the directory holds no capture records.
var ErrNoImages = errors.New("no images found")

// Catalog scans a single image directory.
type Catalog struct {
	dir string
}

// New returns a catalog over dir.
func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the directory the catalog scans.
func (c *Catalog) Dir() string {
	return c.dir
}

// ScanAll returns every capture record, newest first by file modification
// time. Files not matching the capture glob are excluded; a missing directory
// yields an empty catalog rather than an error.
func (c *Catalog) ScanAll() ([]Record, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*_exp*ms.png"))
	if err != nil {
		return nil, fmt.Errorf("glob image dir: %w", err)
	}

	records := make([]Record, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			// File vanished between glob and stat; skip it.
			continue
		}
		name := filepath.Base(path)
		ts, exposure := ParseFilename(name)

		// Bucketing falls back to the modification time when the name
		// carries no timestamp token.
		effective := info.ModTime()
		if ts != nil {
			effective = *ts
		}

		records = append(records, Record{
			Filename:     name,
			Path:         path,
			Timestamp:    ts,
			ExposureMs:   exposure,
			SizeBytes:    info.Size(),
			Modified:     info.ModTime(),
			SessionLabel: SessionLabel(effective),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Modified.After(records[j].Modified)
	})
	return records, nil
}

// DeleteResult reports the outcome of a bulk session deletion.
type DeleteResult struct {
	Status            string
	DeletedCount      int
	DeletedLabels     []string
	PreservedFilename string
	Failed            []string
}

// DeleteBySessionLabels removes every record whose night-session label is in
// labels, except the single newest record, which is always preserved. An
// individual file that fails to delete is reported but does not abort the
// batch; the result status is "partial" when any deletion failed and
// "success" otherwise.
func (c *Catalog) DeleteBySessionLabels(labels []string) (DeleteResult, error) {
	if len(labels) == 0 {
		return DeleteResult{}, errors.New("no sessions specified for deletion")
	}
	records, err := c.ScanAll()
	if err != nil {
		return DeleteResult{}, err
	}
	if len(records) == 0 {
		return DeleteResult{}, ErrNoImages
	}

	wanted := make(map[string]bool, len(labels))
	for _, label := range labels {
		wanted[label] = true
	}

	result := DeleteResult{
		Status:            "success",
		PreservedFilename: records[0].Filename,
	}
	touched := make(map[string]bool)

	for _, record := range records[1:] {
		if !wanted[record.SessionLabel] {
			continue
		}
		if !touched[record.SessionLabel] {
			touched[record.SessionLabel] = true
			result.DeletedLabels = append(result.DeletedLabels, record.SessionLabel)
		}
		if err := os.Remove(record.Path); err != nil {
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", record.Filename, err))
			continue
		}
		result.DeletedCount++
	}

	if len(result.Failed) > 0 {
		result.Status = "partial"
	}
	sort.Strings(result.DeletedLabels)
	return result, nil
}

// SessionLabel buckets a capture time into its imaging night: the session
// runs from local noon to the next local noon, labeled with the date the
// session starts. A 23:50 capture and the following 00:10 capture share a
// label; a 12:05 capture starts the next session.
func SessionLabel(t time.Time) string {
	if t.Hour() < 12 {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format("2006-01-02")
}

// ParseFilename extracts the timestamp and exposure tokens from a capture
// filename. Either token may be absent.
func ParseFilename(name string) (*time.Time, *int) {
	var ts *time.Time
	if m := timestampToken.FindStringSubmatch(name); m != nil {
		if parsed, err := time.ParseInLocation("20060102_150405", m[1], time.Local); err == nil {
			ts = &parsed
		}
	}
	var exposure *int
	if m := exposureToken.FindStringSubmatch(name); m != nil {
		var value int
		if _, err := fmt.Sscanf(m[1], "%d", &value); err == nil {
			exposure = &value
		}
	}
	return ts, exposure
}
