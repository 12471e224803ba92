package sink

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
)

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "stimulus_events")
	target := time.Now()
	fired := target.Add(800 * time.Microsecond)

	records := []domain.StimulusRecord{
		{
			RunID:    "run-1",
			Channel:  65,
			Target:   target,
			FiredAt:  fired,
			Outcome:  domain.OutcomeFired,
			Lateness: 800 * time.Microsecond,
		},
		{
			RunID:   "run-1",
			Channel: 65,
			Target:  target.Add(-time.Second),
			Outcome: domain.OutcomeMissed,
		},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO stimulus_events (run_id, channel, target, fired_at, outcome, lateness_us, error) VALUES ($1,$2,$3,$4,$5,$6,$7),($8,$9,$10,$11,$12,$13,$14) ON CONFLICT (run_id, target) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"run-1", 65, target, fired, "fired", int64(800), "",
			"run-1", 65, target.Add(-time.Second), nil, "missed", int64(0), "",
		).
		WillReturnResult(sqlmock.NewResult(2, 2))

	if err := sink.WriteBatch(context.Background(), records); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkWriteBatchNoRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "stimulus_events")
	if err := sink.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewTimescaleSink(db, "stimulus_events")
	if sink.Name() != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", sink.Name())
	}
}
