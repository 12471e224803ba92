package ports

import (
	"context"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
)

// EventSink receives batches of stimulus records from the journal.
type EventSink interface {
	WriteBatch(ctx context.Context, records []domain.StimulusRecord) error
	Name() string
}
