package database

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// BackupDateLayout is the wire format of backup_date: ISO-8601, UTC, whole seconds.
const BackupDateLayout = "2006-01-02T15:04:05Z"

// FormatBackupDate formats t in BackupDateLayout. Sub-second precision is dropped.
func FormatBackupDate(t time.Time) string {
	return t.UTC().Format(BackupDateLayout)
}

// ParseBackupDate parses a BackupDateLayout timestamp.
func ParseBackupDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(BackupDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid backup date %q: %w", s, err)
	}
	return t, nil
}

// Attributes are the entry's extra_attributes. Path, Source and BackupDate
// are always present; Extra carries any additional keys.
type Attributes struct {
	Path       string
	Source     string
	BackupDate string
	Extra      map[string]any
}

const (
	attrPath       = "path"
	attrSource     = "source"
	attrBackupDate = "backup_date"
)

// MarshalJSON encodes the attributes as one flat object with sorted keys.
func (a Attributes) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Extra)+3)
	for k, v := range a.Extra {
		m[k] = v
	}
	m[attrPath] = a.Path
	m[attrSource] = a.Source
	m[attrBackupDate] = a.BackupDate
	return sonic.ConfigStd.Marshal(m)
}

// UnmarshalJSON decodes a flat attribute object.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := sonic.ConfigStd.Unmarshal(data, &m); err != nil {
		return err
	}

	*a = Attributes{}
	a.Path = takeString(m, attrPath)
	a.Source = takeString(m, attrSource)
	a.BackupDate = takeString(m, attrBackupDate)
	if len(m) > 0 {
		a.Extra = m
	}
	return nil
}

func takeString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	s, _ := v.(string)
	return s
}

// Entry is a timeline record referencing one classified, dated file.
type Entry struct {
	ID             int64      `json:"id"`
	Schema         string     `json:"schema"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DateOnTimeline time.Time  `json:"date_on_timeline"`
	Attributes     Attributes `json:"extra_attributes"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EntryFilter narrows entry listings. Zero values do not filter.
type EntryFilter struct {
	Source     string
	BackupDate string
	Schema     string
	Limit      int
	Offset     int
}

// SyncStatus is the outcome of synchronizing one source.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
)

// SyncRun is the journal record of one source synchronization.
type SyncRun struct {
	ID             string     `json:"id"`
	Source         string     `json:"source"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     time.Time  `json:"finishedAt"`
	Status         SyncStatus `json:"status"`
	Processed      int        `json:"processed"`
	Skipped        int        `json:"skipped"`
	Failed         int        `json:"failed"`
	Unprocessed    int        `json:"unprocessed"`
	EntriesCreated int        `json:"entriesCreated"`
	Error          string     `json:"error,omitempty"`
}

// SourceSummary aggregates the entries of one source.
type SourceSummary struct {
	Source         string `json:"source"`
	Entries        int    `json:"entries"`
	Backups        int    `json:"backups"`
	LatestBackupAt string `json:"latestBackupAt"`
}

// Stats summarizes the entry store.
type Stats struct {
	TotalEntries    int            `json:"totalEntries"`
	EntriesBySchema map[string]int `json:"entriesBySchema"`
	Sources         int            `json:"sources"`
}
