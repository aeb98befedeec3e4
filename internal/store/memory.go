package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rkoyama/glmbot/internal/model"
)

// Remember stores a new fact for actor and returns the stored record.
// meta carries free-form key/value annotations and may be nil.
func (s *Store) Remember(ctx context.Context, actor, content, category string, tags []string, meta map[string]string) (*model.MemoryRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("remember: content is empty")
	}

	now := time.Now().UTC()
	rec := &model.MemoryRecord{
		ID:        s.newID(),
		Actor:     actor,
		Content:   content,
		Category:  category,
		Tags:      tags,
		Meta:      meta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var tagsJSON, metaJSON *string
	if len(tags) > 0 {
		b, _ := json.Marshal(tags)
		j := string(b)
		tagsJSON = &j
	}
	if len(meta) > 0 {
		b, _ := json.Marshal(meta)
		j := string(b)
		metaJSON = &j
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, actor, content, category, tags, meta, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, actor, content, category, tagsJSON, metaJSON, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return rec, nil
}

// Recall finds actor's records matching query, best match first. The
// query is split on whitespace; a record matches if any keyword
// appears in its content, category, or tags. Results order by number
// of matched keywords, then most recently updated. An empty result is
// not an error. Records of other actors are never returned.
func (s *Store) Recall(ctx context.Context, actor, query string, limit int) ([]model.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return s.ListMemories(ctx, actor, "", 0, limit)
	}

	// One LIKE clause per keyword, metacharacters escaped so the
	// user's query cannot alter the match semantics.
	var clauses []string
	args := []interface{}{actor}
	for _, kw := range keywords {
		pat := "%" + escapeLike(kw) + "%"
		clauses = append(clauses,
			`(content LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\' OR IFNULL(tags, '') LIKE ? ESCAPE '\')`)
		args = append(args, pat, pat, pat)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, actor, content, category, tags, meta, created_at, updated_at
		 FROM memories WHERE actor = ? AND (%s)
		 ORDER BY updated_at DESC`, strings.Join(clauses, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	defer rows.Close()

	records, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	// Relevance: how many keywords this record matches.
	score := func(r model.MemoryRecord) int {
		hay := strings.ToLower(r.Content + " " + r.Category + " " + strings.Join(r.Tags, " "))
		n := 0
		for _, kw := range keywords {
			if strings.Contains(hay, kw) {
				n++
			}
		}
		return n
	}
	sort.SliceStable(records, func(i, j int) bool {
		si, sj := score(records[i]), score(records[j])
		if si != sj {
			return si > sj
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ListMemories pages through actor's records, newest first,
// optionally filtered by category.
func (s *Store) ListMemories(ctx context.Context, actor, category string, offset, limit int) ([]model.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT id, actor, content, category, tags, meta, created_at, updated_at
	          FROM memories WHERE actor = ?`
	args := []interface{}{actor}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// UpdateMemory edits the content and/or category of one of actor's
// records. Empty arguments leave the field unchanged. Records owned
// by other actors report ErrNotFound.
func (s *Store) UpdateMemory(ctx context.Context, actor, id, content, category string) (*model.MemoryRecord, error) {
	rec, err := s.getOwnedMemory(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if content != "" {
		rec.Content = content
	}
	if category != "" {
		rec.Category = category
	}
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, category = ?, updated_at = ? WHERE id = ? AND actor = ?`,
		rec.Content, rec.Category, formatTime(rec.UpdatedAt), id, actor)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	return rec, nil
}

// Forget deletes one of actor's records. A record that exists but
// belongs to someone else reports ErrNotFound, same as a missing one.
func (s *Store) Forget(ctx context.Context, actor, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND actor = ?`, id, actor)
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

// ExportMemories returns every record actor owns, oldest first.
func (s *Store) ExportMemories(ctx context.Context, actor string) ([]model.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor, content, category, tags, meta, created_at, updated_at
		 FROM memories WHERE actor = ? ORDER BY created_at`, actor)
	if err != nil {
		return nil, fmt.Errorf("export memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ImportMemories stores records under actor's ownership, assigning
// fresh IDs. Returns the number imported.
func (s *Store) ImportMemories(ctx context.Context, actor string, records []model.MemoryRecord) (int, error) {
	imported := 0
	for _, r := range records {
		if _, err := s.Remember(ctx, actor, r.Content, r.Category, r.Tags, r.Meta); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// ClearMemories deletes all of actor's records and reports the count.
func (s *Store) ClearMemories(ctx context.Context, actor string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE actor = ?`, actor)
	if err != nil {
		return 0, fmt.Errorf("clear memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) getOwnedMemory(ctx context.Context, actor, id string) (*model.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor, content, category, tags, meta, created_at, updated_at
		 FROM memories WHERE id = ? AND actor = ?`, id, actor)
	rec, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load memory: %w", err)
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (model.MemoryRecord, error) {
	var rec model.MemoryRecord
	var tagsJSON, metaJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.Actor, &rec.Content, &rec.Category,
		&tagsJSON, &metaJSON, &createdAt, &updatedAt)
	if err != nil {
		return rec, err
	}

	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &rec.Tags)
	}
	if metaJSON.Valid {
		json.Unmarshal([]byte(metaJSON.String), &rec.Meta)
	}
	return rec, nil
}

func scanMemories(rows *sql.Rows) ([]model.MemoryRecord, error) {
	var records []model.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
