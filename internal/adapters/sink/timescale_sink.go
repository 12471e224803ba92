package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

// OpenTimescale opens a Postgres/TimescaleDB connection pool through lib/pq.
func OpenTimescale(ctx context.Context, connString, table string) (*TimescaleSink, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping timescale: %w", err)
	}
	return NewTimescaleSink(db, table), nil
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

func (t *TimescaleSink) WriteBatch(ctx context.Context, records []domain.StimulusRecord) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (run_id, channel, target, fired_at, outcome, lateness_us, error) VALUES ")

	args := make([]any, 0, len(records)*7)
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6, len(args)+7))

		var firedAt any
		if !r.FiredAt.IsZero() {
			firedAt = r.FiredAt
		}
		args = append(args,
			r.RunID,
			r.Channel,
			r.Target,
			firedAt,
			string(r.Outcome),
			r.Lateness.Microseconds(),
			r.Error,
		)
	}

	b.WriteString(" ON CONFLICT (run_id, target) DO NOTHING")

	_, err := t.db.ExecContext(ctx, b.String(), args...)
	return err
}

func (t *TimescaleSink) Close() error { return t.db.Close() }

var _ ports.EventSink = (*TimescaleSink)(nil)
