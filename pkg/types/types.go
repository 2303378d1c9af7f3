// pkg/types/types.go
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel values written to the store in place of an extracted value
const (
	NotFound = "NOT_FOUND"
	Skip     = "SKIP"
	Blocked  = "BLOCKED"
	Error    = "ERROR"
)

// IsSentinel reports whether v is one of the reserved sentinel strings
func IsSentinel(v string) bool {
	switch v {
	case NotFound, Skip, Blocked, Error:
		return true
	}
	return false
}

// Field names one derived output of a work item
type Field string

const (
	FieldLink    Field = "link"
	FieldName    Field = "name"
	FieldVideoID Field = "video_id"
)

// AllFields returns every derived field in extraction order
func AllFields() []Field {
	return []Field{FieldLink, FieldName, FieldVideoID}
}

// FieldSet is a small set of fields
type FieldSet map[Field]struct{}

// NewFieldSet builds a set from the given fields
func NewFieldSet(fields ...Field) FieldSet {
	fs := make(FieldSet, len(fields))
	for _, f := range fields {
		fs[f] = struct{}{}
	}
	return fs
}

// Has reports membership
func (fs FieldSet) Has(f Field) bool {
	_, ok := fs[f]
	return ok
}

// Add inserts f
func (fs FieldSet) Add(f Field) {
	fs[f] = struct{}{}
}

// Empty reports whether no fields are present
func (fs FieldSet) Empty() bool {
	return len(fs) == 0
}

// NeedsMetadata reports whether link or name is requested
func (fs FieldSet) NeedsMetadata() bool {
	return fs.Has(FieldLink) || fs.Has(FieldName)
}

// NeedsVideo reports whether the video identifier is requested
func (fs FieldSet) NeedsVideo() bool {
	return fs.Has(FieldVideoID)
}

// String renders the set in stable order
func (fs FieldSet) String() string {
	names := make([]string, 0, len(fs))
	for f := range fs {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ",") + "}"
}

// WorkItem is one page still needing at least one derived field.
// RowKey is the source URL; positions in the store are not stable.
type WorkItem struct {
	SourceURL  string
	RowKey     string
	Advertiser string
	Required   FieldSet
	Existing   map[Field]string
}

// ExistingValue returns the value already stored for f, if any
func (w WorkItem) ExistingValue(f Field) string {
	if w.Existing == nil {
		return ""
	}
	return w.Existing[f]
}

// ExtractionRecord holds the outcome of one extraction attempt chain.
// Every field is either a real value or a sentinel.
type ExtractionRecord struct {
	Link    string `json:"link"`
	Name    string `json:"name"`
	VideoID string `json:"video_id"`
}

// NewRecord sets requested fields to NOT_FOUND and all others to SKIP
func NewRecord(required FieldSet) ExtractionRecord {
	rec := ExtractionRecord{Link: Skip, Name: Skip, VideoID: Skip}
	for f := range required {
		rec.set(f, NotFound)
	}
	return rec
}

// BlockedRecord marks every field BLOCKED
func BlockedRecord() ExtractionRecord {
	return ExtractionRecord{Link: Blocked, Name: Blocked, VideoID: Blocked}
}

// ErrorRecord marks requested fields ERROR and the rest SKIP
func ErrorRecord(required FieldSet) ExtractionRecord {
	rec := ExtractionRecord{Link: Skip, Name: Skip, VideoID: Skip}
	for f := range required {
		rec.set(f, Error)
	}
	return rec
}

// Get returns the value of f
func (r ExtractionRecord) Get(f Field) string {
	switch f {
	case FieldLink:
		return r.Link
	case FieldName:
		return r.Name
	case FieldVideoID:
		return r.VideoID
	}
	return ""
}

func (r *ExtractionRecord) set(f Field, v string) {
	switch f {
	case FieldLink:
		r.Link = v
	case FieldName:
		r.Name = v
	case FieldVideoID:
		r.VideoID = v
	}
}

// Fill writes v into f only while f is still NOT_FOUND. A resolved
// value is never overwritten. Fill reports whether the write happened.
func (r *ExtractionRecord) Fill(f Field, v string) bool {
	if v == "" || r.Get(f) != NotFound {
		return false
	}
	r.set(f, v)
	return true
}

// Set overwrites f unconditionally. Used when degrading a field.
func (r *ExtractionRecord) Set(f Field, v string) {
	r.set(f, v)
}

// IsBlocked reports whether the record carries the block signal
func (r ExtractionRecord) IsBlocked() bool {
	return r.Link == Blocked || r.Name == Blocked || r.VideoID == Blocked
}

// Resolved reports whether f holds a real value
func (r ExtractionRecord) Resolved(f Field) bool {
	v := r.Get(f)
	return v != "" && !IsSentinel(v)
}

// Complete reports whether every requested field is neither NOT_FOUND nor ERROR
func (r ExtractionRecord) Complete(required FieldSet) bool {
	for f := range required {
		switch r.Get(f) {
		case NotFound, Error, "":
			return false
		}
	}
	return true
}

// Exhausted returns the degraded record used after retries run out:
// requested fields NOT_FOUND, the rest SKIP, resolved values kept.
func (r ExtractionRecord) Exhausted(required FieldSet) ExtractionRecord {
	out := NewRecord(required)
	for _, f := range AllFields() {
		if r.Resolved(f) {
			out.set(f, r.Get(f))
		}
	}
	return out
}

func (r ExtractionRecord) String() string {
	return fmt.Sprintf("link=%s name=%s video=%s", r.Link, r.Name, r.VideoID)
}

// Result pairs a work item with its final record
type Result struct {
	Item     WorkItem
	Record   ExtractionRecord
	Attempts int
	Duration time.Duration
}

// Mode selects which derived fields a deployment fills
type Mode string

const (
	ModeMetadata Mode = "metadata"
	ModeVideo    Mode = "video"
	ModeUnified  Mode = "unified"
)

// IsValid checks the mode value
func (m Mode) IsValid() bool {
	switch m {
	case ModeMetadata, ModeVideo, ModeUnified:
		return true
	}
	return false
}
