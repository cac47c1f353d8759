// Package sqlite provides long-term persistence of rule execution records.
//
// The engine's in-memory history ring keeps only the most recent entries;
// the archive retains everything for offline analytics. Archive failures
// never affect evaluation: callers log and continue on the in-memory ring.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

const schema = `
CREATE TABLE IF NOT EXISTS rule_executions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_id        TEXT NOT NULL,
	rule_name      TEXT NOT NULL,
	executed       INTEGER NOT NULL,
	success        INTEGER NOT NULL,
	effect         TEXT NOT NULL,
	message        TEXT NOT NULL DEFAULT '',
	execution_ns   INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rule_executions_rule_id ON rule_executions(rule_id);
CREATE INDEX IF NOT EXISTS idx_rule_executions_created_at ON rule_executions(created_at);
`

// HistoryArchive stores execution records in a SQLite database.
type HistoryArchive struct {
	db *sql.DB
}

// OpenHistoryArchive opens (creating if needed) the archive database at path.
// Use ":memory:" for an ephemeral archive in tests.
func OpenHistoryArchive(path string) (*HistoryArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history archive: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history archive schema: %w", err)
	}
	return &HistoryArchive{db: db}, nil
}

// Append persists execution records.
func (a *HistoryArchive) Append(ctx context.Context, results ...rule.ExecutionResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rule_executions
		(rule_id, rule_name, executed, success, effect, message, execution_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			r.RuleID, r.RuleName, boolToInt(r.Executed), boolToInt(r.Success),
			string(r.Effect), r.Message, r.ExecutionTime.Nanoseconds(), ts,
		); err != nil {
			return fmt.Errorf("insert execution record: %w", err)
		}
	}
	return tx.Commit()
}

// RuleStat is an aggregate over one rule's archived executions.
type RuleStat struct {
	RuleID     string
	RuleName   string
	Executions int64
}

// TotalExecutions returns the number of archived records where the rule
// actually executed (condition matched).
func (a *HistoryArchive) TotalExecutions(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rule_executions WHERE executed = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archived executions: %w", err)
	}
	return n, nil
}

// TopExecuted returns the most frequently executed rules, descending.
func (a *HistoryArchive) TopExecuted(ctx context.Context, limit int) ([]RuleStat, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT rule_id, rule_name, COUNT(*) AS n
		FROM rule_executions
		WHERE executed = 1
		GROUP BY rule_id, rule_name
		ORDER BY n DESC, rule_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top executed rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []RuleStat
	for rows.Next() {
		var s RuleStat
		if err := rows.Scan(&s.RuleID, &s.RuleName, &s.Executions); err != nil {
			return nil, fmt.Errorf("scan rule stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Close releases the underlying database handle.
func (a *HistoryArchive) Close() error {
	return a.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
