package ports

import "context"

// StimulusOutput delivers one stimulus. Fire should return quickly; delivery
// confirmation, if any, is the device's business.
type StimulusOutput interface {
	Fire(ctx context.Context) error
	Name() string
}
