// Package database provides database access for the hymnal API.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Hymn is the primary record: a numbered, titled song with ordered verses.
type Hymn struct {
	ID          string    `json:"id"`     // Opaque store-assigned identifier
	Number      int       `json:"number"` // Unique across the collection
	Title       string    `json:"title"`
	HymnContent []Verse   `json:"hymnContent"` // Rendered in Order sequence
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Verse is a sub-record of a Hymn with a display order, sub-title, and text.
// Order is the rendering sort key; values are not required to be unique.
type Verse struct {
	Order    int    `json:"order"`
	SubTitle string `json:"subTitle"`
	Content  string `json:"content"`
}

// HymnInput is the validated payload for creating a hymn.
type HymnInput struct {
	Number      int     `json:"number"`
	Title       string  `json:"title"`
	HymnContent []Verse `json:"hymnContent"`
}

// Validate checks that the input describes a storable hymn.
func (in *HymnInput) Validate() error {
	var errs []error

	if in.Number <= 0 {
		errs = append(errs, fmt.Errorf("number must be a positive integer, got %d", in.Number))
	}
	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}
	for i, v := range in.HymnContent {
		if v.Order < 0 {
			errs = append(errs, fmt.Errorf("hymnContent[%d].order must not be negative, got %d", i, v.Order))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// HymnPatch is the payload for updating a hymn by number.
// Nil fields are left unchanged; number and id are immutable through update.
type HymnPatch struct {
	Title       *string  `json:"title"`
	HymnContent *[]Verse `json:"hymnContent"`
}

// IsEmpty reports whether the patch would change nothing.
func (p *HymnPatch) IsEmpty() bool {
	return p.Title == nil && p.HymnContent == nil
}

// HymnStats contains collection-level statistics.
type HymnStats struct {
	TotalHymns    int `json:"total_hymns"`
	TotalVerses   int `json:"total_verses"`
	LowestNumber  int `json:"lowest_number"`
	HighestNumber int `json:"highest_number"`
}

// -----------------------------------------------------------------
// Verse JSON column helpers
// -----------------------------------------------------------------

// MarshalVerses serializes verses to the JSON column format.
// A nil slice is stored as an empty array, never as JSON null.
func MarshalVerses(verses []Verse) (string, error) {
	if verses == nil {
		verses = []Verse{}
	}
	data, err := json.Marshal(verses)
	if err != nil {
		return "", fmt.Errorf("marshal verses: %w", err)
	}
	return string(data), nil
}

// UnmarshalVerses parses the JSON column format back into verses.
func UnmarshalVerses(data string) ([]Verse, error) {
	if data == "" {
		return []Verse{}, nil
	}
	var verses []Verse
	if err := json.Unmarshal([]byte(data), &verses); err != nil {
		return nil, fmt.Errorf("unmarshal verses: %w", err)
	}
	if verses == nil {
		verses = []Verse{}
	}
	return verses, nil
}

// FlattenVerses joins verse text into a single string for the search index.
// Sub-titles are included so labels like "Chorus" are searchable alongside
// the verse body.
func FlattenVerses(verses []Verse) string {
	var b strings.Builder
	for i, v := range verses {
		if i > 0 {
			b.WriteByte('\n')
		}
		if v.SubTitle != "" {
			b.WriteString(v.SubTitle)
			b.WriteByte('\n')
		}
		b.WriteString(v.Content)
	}
	return b.String()
}

// -----------------------------------------------------------------
// Bulk import types
// -----------------------------------------------------------------

// ImportData is the top-level structure of a hymnal JSON file.
type ImportData struct {
	Metadata ImportMetadata `json:"metadata"`
	Hymns    []HymnInput    `json:"hymns"`
}

// ImportMetadata describes the provenance of an imported hymnal file.
type ImportMetadata struct {
	Source      string `json:"source"`
	GeneratedAt string `json:"generated_at"`
}
