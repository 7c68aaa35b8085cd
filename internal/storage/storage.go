package storage

import (
	"time"

	"can-telemetry-dashboard/internal/model"
)

// Store persists the dashboard's change history: one sample per emitted
// change event.
type Store interface {
	SaveSample(s model.Sample) error
	ListFields() ([]string, error)
	QuerySamples(field string, start, end *time.Time) ([]model.Sample, error)
}
