package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown rule ids.
var ErrNotFound = errors.New("rule not found")

// Store persists learned rules in the rules table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a rule store on an opened and migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const ruleColumns = `rule_id, description, pattern, confidence, success_count, attempt_count, created_at, last_used_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Upsert records one observation of rule. An unseen rule is inserted with an
// attempt count of one; a rule matching by id or normalized description has
// its counts incremented. Confidence is recomputed from the counts.
func (s *Store) Upsert(ctx context.Context, rule LearnedRule, success bool) (LearnedRule, error) {
	norm := Normalize(rule.Description)
	if norm == "" {
		return LearnedRule{}, fmt.Errorf("upsert rule: description is required")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return LearnedRule{}, fmt.Errorf("begin upsert rule: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, found, err := findRule(ctx, tx, rule.ID, norm)
	if err != nil {
		return LearnedRule{}, err
	}

	now := s.now()
	inc := 0
	if success {
		inc = 1
	}

	var out LearnedRule
	if found {
		out = existing
		out.AttemptCount++
		out.SuccessCount += inc
		out.Confidence = Confidence(out.SuccessCount, out.AttemptCount)
		out.LastUsedAt = now
		if out.Pattern == "" && rule.Pattern != "" {
			out.Pattern = rule.Pattern
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rules SET success_count=?, attempt_count=?, confidence=?, last_used_at=?, pattern=? WHERE rule_id=?`,
			out.SuccessCount, out.AttemptCount, out.Confidence, formatTime(out.LastUsedAt), nullableString(out.Pattern), out.ID); err != nil {
			return LearnedRule{}, fmt.Errorf("update rule: %w", err)
		}
	} else {
		id := rule.ID
		if id == "" {
			v7, err := uuid.NewV7()
			if err != nil {
				return LearnedRule{}, fmt.Errorf("mint rule id: %w", err)
			}
			id = v7.String()
		}
		out = LearnedRule{
			ID:           id,
			Description:  strings.TrimSpace(rule.Description),
			Pattern:      strings.TrimSpace(rule.Pattern),
			SuccessCount: inc,
			AttemptCount: 1,
			Confidence:   Confidence(inc, 1),
			CreatedAt:    now,
			LastUsedAt:   now,
		}
		if err := insertRule(ctx, tx, out); err != nil {
			return LearnedRule{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return LearnedRule{}, fmt.Errorf("commit upsert rule: %w", err)
	}
	return out, nil
}

func findRule(ctx context.Context, tx *sql.Tx, id, norm string) (LearnedRule, bool, error) {
	if id != "" {
		r, err := scanRule(tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE rule_id=?`, id))
		if err == nil {
			return r, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return LearnedRule{}, false, fmt.Errorf("read rule: %w", err)
		}
	}
	r, err := scanRule(tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE norm_description=?`, norm))
	if err == nil {
		return r, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return LearnedRule{}, false, nil
	}
	return LearnedRule{}, false, fmt.Errorf("read rule: %w", err)
}

func insertRule(ctx context.Context, tx *sql.Tx, r LearnedRule) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO rules(`+ruleColumns+`, norm_description) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Description, nullableString(r.Pattern), r.Confidence, r.SuccessCount, r.AttemptCount,
		formatTime(r.CreatedAt), formatTime(r.LastUsedAt), Normalize(r.Description)); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Get returns the rule with the given id.
func (s *Store) Get(ctx context.Context, id string) (LearnedRule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE rule_id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LearnedRule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return LearnedRule{}, fmt.Errorf("read rule: %w", err)
	}
	return r, nil
}

// List returns rules with confidence at or above minConfidence, highest
// confidence first and oldest first among ties.
func (s *Store) List(ctx context.Context, minConfidence float64) ([]LearnedRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE confidence >= ?
		ORDER BY confidence DESC, created_at ASC, rule_id ASC`, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LearnedRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

// Remove deletes a rule.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE rule_id=?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Decay scales the counts of rules not used since cutoff by factor, moving
// their confidence toward the prior. It returns the number of rules changed.
func (s *Store) Decay(ctx context.Context, cutoff time.Time, factor float64) (int, error) {
	if factor < 0 || factor > 1 {
		return 0, fmt.Errorf("decay factor %v outside [0,1]", factor)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin decay rules: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE last_used_at < ?`, formatTime(cutoff.UTC()))
	if err != nil {
		return 0, fmt.Errorf("select stale rules: %w", err)
	}
	var stale []LearnedRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan rule: %w", err)
		}
		stale = append(stale, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("select stale rules: %w", err)
	}

	changed := 0
	for _, r := range stale {
		attempts := int(math.Round(float64(r.AttemptCount) * factor))
		successes := min(int(math.Round(float64(r.SuccessCount)*factor)), attempts)
		if attempts == r.AttemptCount && successes == r.SuccessCount {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rules SET success_count=?, attempt_count=?, confidence=? WHERE rule_id=?`,
			successes, attempts, Confidence(successes, attempts), r.ID); err != nil {
			return 0, fmt.Errorf("decay rule %s: %w", r.ID, err)
		}
		changed++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit decay rules: %w", err)
	}
	return changed, nil
}

// Export writes every rule as a JSON object keyed by rule id.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	all, err := s.List(ctx, 0)
	if err != nil {
		return err
	}
	doc := make(map[string]LearnedRule, len(all))
	for _, r := range all {
		doc[r.ID] = r
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return nil
}

// Import merges rules from a JSON object keyed by rule id. Rules already
// present by id or normalized description are kept unchanged. It returns the
// number of rules added.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc map[string]LearnedRule
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode rules: %w", err)
	}
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin import rules: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	now := s.now()
	for _, id := range ids {
		rule := doc[id]
		if rule.ID == "" {
			rule.ID = id
		}
		if rule.ID != id {
			return 0, fmt.Errorf("import rule %s: key does not match rule_id %s", id, rule.ID)
		}
		norm := Normalize(rule.Description)
		if norm == "" {
			return 0, fmt.Errorf("import rule %s: description is required", id)
		}
		if rule.SuccessCount < 0 || rule.AttemptCount < rule.SuccessCount {
			return 0, fmt.Errorf("import rule %s: invalid counts %d/%d", id, rule.SuccessCount, rule.AttemptCount)
		}
		if _, found, err := findRule(ctx, tx, rule.ID, norm); err != nil {
			return 0, err
		} else if found {
			continue
		}
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = now
		}
		if rule.LastUsedAt.IsZero() {
			rule.LastUsedAt = rule.CreatedAt
		}
		rule.Confidence = Confidence(rule.SuccessCount, rule.AttemptCount)
		if err := insertRule(ctx, tx, rule); err != nil {
			return 0, err
		}
		added++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import rules: %w", err)
	}
	return added, nil
}

func scanRule(row rowScanner) (LearnedRule, error) {
	var (
		r                   LearnedRule
		pattern             sql.NullString
		createdAt, lastUsed string
	)
	if err := row.Scan(&r.ID, &r.Description, &pattern, &r.Confidence, &r.SuccessCount, &r.AttemptCount, &createdAt, &lastUsed); err != nil {
		return LearnedRule{}, err
	}
	r.Pattern = pattern.String
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return LearnedRule{}, fmt.Errorf("parse created_at: %w", err)
	}
	if r.LastUsedAt, err = time.Parse(time.RFC3339Nano, lastUsed); err != nil {
		return LearnedRule{}, fmt.Errorf("parse last_used_at: %w", err)
	}
	return r, nil
}

// formatTime uses a fixed width layout so stored timestamps sort as text.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
