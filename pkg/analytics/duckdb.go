package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS chat_interactions (
	session_id    VARCHAR NOT NULL,
	question      VARCHAR NOT NULL,
	answer        VARCHAR NOT NULL,
	sources       VARCHAR,
	confidence    DOUBLE,
	retrieval_ms  BIGINT,
	generation_ms BIGINT,
	synthesis_ms  BIGINT,
	total_ms      BIGINT,
	voice         BOOLEAN DEFAULT false,
	created_at    TIMESTAMP NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS moderation_log (
	session_id VARCHAR NOT NULL,
	message    VARCHAR NOT NULL,
	reason     VARCHAR NOT NULL,
	categories VARCHAR,
	created_at TIMESTAMP NOT NULL
)`}

// DuckDB is a Sink backed by a DuckDB database file.
type DuckDB struct {
	db  *sql.DB
	now func() time.Time
}

var _ Sink = (*DuckDB)(nil)

// OpenDuckDB opens (or creates) the database at path. An empty path opens
// an in-memory database.
func OpenDuckDB(path string) (*DuckDB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("analytics: open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("analytics: create schema: %w", err)
		}
	}
	return &DuckDB{db: db, now: time.Now}, nil
}

func (d *DuckDB) Close() error { return d.db.Close() }

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (d *DuckDB) RecordInteraction(ctx context.Context, in Interaction) error {
	sources, err := json.Marshal(in.Sources)
	if err != nil {
		return fmt.Errorf("analytics: encode sources: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO chat_interactions
			(session_id, question, answer, sources, confidence,
			 retrieval_ms, generation_ms, synthesis_ms, total_ms, voice, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.SessionID, in.Question, in.Answer, string(sources), in.Confidence,
		nullInt(in.Timings.RetrievalMS), nullInt(in.Timings.GenerationMS),
		nullInt(in.Timings.SynthesisMS), nullInt(in.Timings.TotalMS),
		in.Voice, d.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("analytics: record interaction: %w", err)
	}
	return nil
}

func (d *DuckDB) RecordAbuse(ctx context.Context, a Abuse) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO moderation_log (session_id, message, reason, categories, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.SessionID, a.Message, a.Reason, strings.Join(a.Categories, ","), d.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("analytics: record abuse: %w", err)
	}
	return nil
}

// Percentiles summarizes one latency column. The pointers are nil when
// Count is 0.
type Percentiles struct {
	Count int64    `json:"count"`
	P50   *int64   `json:"p50,omitempty"`
	P95   *int64   `json:"p95,omitempty"`
	P99   *int64   `json:"p99,omitempty"`
	Avg   *float64 `json:"avg,omitempty"`
}

// LatencyBreakdown holds latency percentiles overall and per component.
type LatencyBreakdown struct {
	Overall    Percentiles            `json:"overall"`
	Components map[string]Percentiles `json:"by_component"`
}

// latencyColumns maps breakdown names to chat_interactions columns.
var latencyColumns = []struct{ name, column string }{
	{"retrieval", "retrieval_ms"},
	{"generation", "generation_ms"},
	{"synthesis", "synthesis_ms"},
}

// LatencyBreakdown computes percentiles over the interactions of the last
// days days.
func (d *DuckDB) LatencyBreakdown(ctx context.Context, days int) (*LatencyBreakdown, error) {
	since := d.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	out := &LatencyBreakdown{Components: make(map[string]Percentiles)}

	var err error
	if out.Overall, err = d.percentiles(ctx, "total_ms", since); err != nil {
		return nil, err
	}
	for _, c := range latencyColumns {
		p, err := d.percentiles(ctx, c.column, since)
		if err != nil {
			return nil, err
		}
		out.Components[c.name] = p
	}
	return out, nil
}

func (d *DuckDB) percentiles(ctx context.Context, column string, since time.Time) (Percentiles, error) {
	q := fmt.Sprintf(`
		SELECT count(%[1]s),
		       quantile_disc(%[1]s, 0.5),
		       quantile_disc(%[1]s, 0.95),
		       quantile_disc(%[1]s, 0.99),
		       avg(%[1]s)
		FROM chat_interactions
		WHERE created_at >= ? AND %[1]s IS NOT NULL`, column)

	var (
		p             Percentiles
		p50, p95, p99 sql.NullInt64
		avg           sql.NullFloat64
	)
	if err := d.db.QueryRowContext(ctx, q, since).Scan(&p.Count, &p50, &p95, &p99, &avg); err != nil {
		return p, fmt.Errorf("analytics: %s percentiles: %w", column, err)
	}
	if p50.Valid {
		p.P50, p.P95, p.P99 = &p50.Int64, &p95.Int64, &p99.Int64
	}
	if avg.Valid {
		p.Avg = &avg.Float64
	}
	return p, nil
}

// Summary is a dashboard overview of recent activity.
type Summary struct {
	Sessions      int64         `json:"sessions"`
	Questions     int64         `json:"questions"`
	LowConfidence int64         `json:"low_confidence"`
	Rejected      int64         `json:"rejected"`
	TopQuestions  []QuestionHit `json:"top_questions"`
}

// QuestionHit is a frequently asked question.
type QuestionHit struct {
	Question string `json:"question"`
	Count    int64  `json:"count"`
}

// LowConfidence is the confidence below which an answer counts as weakly
// grounded.
const LowConfidence = 0.3

// Summary reports activity over the last days days, with up to top
// most-asked questions.
func (d *DuckDB) Summary(ctx context.Context, days, top int) (*Summary, error) {
	since := d.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	var s Summary
	err := d.db.QueryRowContext(ctx, `
		SELECT count(DISTINCT session_id),
		       count(*),
		       count(*) FILTER (WHERE confidence < ?)
		FROM chat_interactions
		WHERE created_at >= ?`, LowConfidence, since).Scan(&s.Sessions, &s.Questions, &s.LowConfidence)
	if err != nil {
		return nil, fmt.Errorf("analytics: summary: %w", err)
	}
	err = d.db.QueryRowContext(ctx, `SELECT count(*) FROM moderation_log WHERE created_at >= ?`, since).Scan(&s.Rejected)
	if err != nil {
		return nil, fmt.Errorf("analytics: summary: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT lower(trim(question)) AS q, count(*) AS n
		FROM chat_interactions
		WHERE created_at >= ?
		GROUP BY q
		ORDER BY n DESC, q
		LIMIT %d`, max(top, 0)), since)
	if err != nil {
		return nil, fmt.Errorf("analytics: top questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h QuestionHit
		if err := rows.Scan(&h.Question, &h.Count); err != nil {
			return nil, fmt.Errorf("analytics: top questions: %w", err)
		}
		s.TopQuestions = append(s.TopQuestions, h)
	}
	return &s, rows.Err()
}
