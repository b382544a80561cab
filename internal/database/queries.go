package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// querier is implemented by *DB and *Tx so hymn operations can run either
// standalone or inside a caller-managed transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const hymnColumns = `id, number, title, verses, created_at, updated_at`

// =============================================================================
// Helper Functions
// =============================================================================

// parseTimestamp parses a timestamp from SQLite TEXT format.
// Tries multiple formats and returns the zero time if parsing fails.
func parseTimestamp(s string) time.Time {
	// Try RFC3339 format first (with timezone)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}

	// Try SQLite datetime format (no timezone)
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}

	return time.Time{}
}

// scanHymn reads one hymn row. Works for both sql.Row and sql.Rows.
func scanHymn(row interface{ Scan(...any) error }) (*Hymn, error) {
	var hymn Hymn
	var versesJSON, createdAtStr, updatedAtStr string

	err := row.Scan(
		&hymn.ID,
		&hymn.Number,
		&hymn.Title,
		&versesJSON,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	hymn.HymnContent, err = UnmarshalVerses(versesJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal verses: %w", err)
	}

	hymn.CreatedAt = parseTimestamp(createdAtStr)
	hymn.UpdatedAt = parseTimestamp(updatedAtStr)

	return &hymn, nil
}

// collectHymns drains a result set into a slice.
// Returns an empty (non-nil) slice when nothing matched.
func collectHymns(rows *sql.Rows) ([]Hymn, error) {
	defer rows.Close()

	hymns := []Hymn{}
	for rows.Next() {
		hymn, err := scanHymn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hymn row: %w", err)
		}
		hymns = append(hymns, *hymn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hymn rows: %w", err)
	}

	return hymns, nil
}

// =============================================================================
// Create
// =============================================================================

// CreateHymn inserts a new hymn and its search-index row in one transaction.
// The store assigns the opaque id. Returns ErrDuplicate if a hymn with the
// same number already exists.
func (db *DB) CreateHymn(ctx context.Context, in *HymnInput) (*Hymn, error) {
	var hymn *Hymn
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		hymn, err = tx.CreateHymn(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hymn, nil
}

// CreateHymn inserts a new hymn within an existing transaction.
// Used by the bulk importer to load a whole hymnal atomically.
func (tx *Tx) CreateHymn(ctx context.Context, in *HymnInput) (*Hymn, error) {
	versesJSON, err := MarshalVerses(in.HymnContent)
	if err != nil {
		return nil, err
	}

	hymn := &Hymn{
		ID:          uuid.NewString(),
		Number:      in.Number,
		Title:       in.Title,
		HymnContent: in.HymnContent,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	hymn.UpdatedAt = hymn.CreatedAt
	if hymn.HymnContent == nil {
		hymn.HymnContent = []Verse{}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hymns (id, number, title, verses, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		hymn.ID,
		hymn.Number,
		hymn.Title,
		versesJSON,
		hymn.CreatedAt.Format(time.RFC3339),
		hymn.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert hymn: %w", err)
	}

	if err := indexHymn(ctx, tx, hymn); err != nil {
		return nil, err
	}

	return hymn, nil
}

// indexHymn writes the full-text row for a hymn.
func indexHymn(ctx context.Context, q querier, hymn *Hymn) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO hymns_fts (hymn_id, title, content)
		VALUES (?, ?, ?)
	`, hymn.ID, hymn.Title, FlattenVerses(hymn.HymnContent))
	if err != nil {
		return fmt.Errorf("index hymn: %w", err)
	}
	return nil
}

// deindexHymn removes the full-text row for a hymn.
func deindexHymn(ctx context.Context, q querier, hymnID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM hymns_fts WHERE hymn_id = ?`, hymnID)
	if err != nil {
		return fmt.Errorf("deindex hymn: %w", err)
	}
	return nil
}

// =============================================================================
// Reads
// =============================================================================

// ListHymns returns every hymn in the store's natural order.
func (db *DB) ListHymns(ctx context.Context) ([]Hymn, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+hymnColumns+` FROM hymns`)
	if err != nil {
		return nil, fmt.Errorf("query hymns: %w", err)
	}
	return collectHymns(rows)
}

// GetHymnsByNumber returns all hymns matching a number.
// The unique index means at most one row matches in practice, but the
// contract is a sequence: zero matches yields an empty slice, not an error.
func (db *DB) GetHymnsByNumber(ctx context.Context, number int) ([]Hymn, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+hymnColumns+` FROM hymns WHERE number = ?`, number)
	if err != nil {
		return nil, fmt.Errorf("query hymns by number: %w", err)
	}
	return collectHymns(rows)
}

// GetHymnByID retrieves a hymn by its opaque identifier.
// Returns ErrNotFound if no hymn has that id.
func (db *DB) GetHymnByID(ctx context.Context, id string) (*Hymn, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+hymnColumns+` FROM hymns WHERE id = ?`, id)

	hymn, err := scanHymn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query hymn by id: %w", err)
	}
	return hymn, nil
}

// SearchHymns performs a full-text search over titles and verse content.
// Results are ordered by relevance (FTS5 bm25 rank). A blank term matches
// nothing and returns an empty slice.
func (db *DB) SearchHymns(ctx context.Context, term string) ([]Hymn, error) {
	match := ftsQuery(term)
	if match == "" {
		return []Hymn{}, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+hymnColumns+`
		FROM hymns h
		JOIN (
			SELECT hymn_id, rank
			FROM hymns_fts
			WHERE hymns_fts MATCH ?
		) m ON m.hymn_id = h.id
		ORDER BY m.rank
	`, match)
	if err != nil {
		return nil, fmt.Errorf("search hymns: %w", err)
	}
	return collectHymns(rows)
}

// ftsQuery converts a raw search term into a safe FTS5 MATCH expression.
// Each whitespace-separated token is quoted so user input can never be
// parsed as FTS operators (AND, OR, NEAR, column filters). Tokens with no
// letters or digits are dropped; they would tokenize to an empty phrase.
func ftsQuery(term string) string {
	quoted := []string{}
	for _, f := range strings.Fields(term) {
		if !strings.ContainsFunc(f, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

// =============================================================================
// Update
// =============================================================================

// UpdateHymnByNumber applies a patch to the hymn with the given number and
// returns the post-update hymn. Only fields present in the patch change;
// number and id are immutable. Returns ErrNotFound if no hymn matches.
func (db *DB) UpdateHymnByNumber(ctx context.Context, number int, patch *HymnPatch) (*Hymn, error) {
	// An empty patch changes nothing; skip the write and return the
	// current record, still reporting ErrNotFound for unknown numbers.
	if patch.IsEmpty() {
		hymns, err := db.GetHymnsByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if len(hymns) == 0 {
			return nil, ErrNotFound
		}
		return &hymns[0], nil
	}

	var hymn *Hymn
	err := db.WithTx(ctx, func(tx *Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+hymnColumns+` FROM hymns WHERE number = ?`, number)

		existing, err := scanHymn(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("query hymn by number: %w", err)
		}

		if patch.Title != nil {
			existing.Title = *patch.Title
		}
		if patch.HymnContent != nil {
			existing.HymnContent = *patch.HymnContent
			if existing.HymnContent == nil {
				existing.HymnContent = []Verse{}
			}
		}
		existing.UpdatedAt = time.Now().UTC().Truncate(time.Second)

		versesJSON, err := MarshalVerses(existing.HymnContent)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE hymns
			SET title = ?, verses = ?, updated_at = ?
			WHERE id = ?
		`, existing.Title, versesJSON, existing.UpdatedAt.Format(time.RFC3339), existing.ID)
		if err != nil {
			return fmt.Errorf("update hymn: %w", err)
		}

		// Rebuild the search row to match the new title/content
		if err := deindexHymn(ctx, tx, existing.ID); err != nil {
			return err
		}
		if err := indexHymn(ctx, tx, existing); err != nil {
			return err
		}

		hymn = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hymn, nil
}

// =============================================================================
// Delete
// =============================================================================

// DeleteHymnByNumber removes the hymn with the given number and returns the
// removed record. Returns ErrNotFound if no hymn matches.
func (db *DB) DeleteHymnByNumber(ctx context.Context, number int) (*Hymn, error) {
	return db.deleteHymn(ctx, `number = ?`, number)
}

// DeleteHymnByID removes a hymn by its opaque identifier and returns the
// removed record. Returns ErrNotFound if no hymn matches.
func (db *DB) DeleteHymnByID(ctx context.Context, id string) (*Hymn, error) {
	return db.deleteHymn(ctx, `id = ?`, id)
}

func (db *DB) deleteHymn(ctx context.Context, where string, arg any) (*Hymn, error) {
	var hymn *Hymn
	err := db.WithTx(ctx, func(tx *Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+hymnColumns+` FROM hymns WHERE `+where, arg)

		existing, err := scanHymn(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("query hymn for delete: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM hymns WHERE id = ?`, existing.ID); err != nil {
			return fmt.Errorf("delete hymn: %w", err)
		}

		if err := deindexHymn(ctx, tx, existing.ID); err != nil {
			return err
		}

		hymn = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hymn, nil
}

// =============================================================================
// Stats
// =============================================================================

// CountHymns returns the number of hymns in the collection.
func (db *DB) CountHymns(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hymns`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count hymns: %w", err)
	}
	return count, nil
}

// GetHymnStats returns collection-level statistics.
//
// Useful for:
// - Verifying bulk imports
// - Dashboard/admin views
func (db *DB) GetHymnStats(ctx context.Context) (*HymnStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_hymns,
			COALESCE(SUM(json_array_length(verses)), 0) AS total_verses,
			COALESCE(MIN(number), 0) AS lowest_number,
			COALESCE(MAX(number), 0) AS highest_number
		FROM hymns
	`

	var stats HymnStats
	err := db.QueryRowContext(ctx, query).Scan(
		&stats.TotalHymns,
		&stats.TotalVerses,
		&stats.LowestNumber,
		&stats.HighestNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query hymn stats: %w", err)
	}

	return &stats, nil
}
