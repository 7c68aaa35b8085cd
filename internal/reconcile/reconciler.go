package reconcile

import (
	"sync"
	"time"

	"can-telemetry-dashboard/internal/model"
)

// Reconciler owns the telemetry snapshot and decides, per field, whether an
// incoming value is a change worth notifying. All Apply methods are
// serialized by an internal mutex held only for the duration of the call;
// network I/O never happens under it.
type Reconciler struct {
	mu   sync.Mutex
	snap model.TelemetrySnapshot
	now  func() time.Time
}

// New returns a Reconciler with all numeric fields at 0.0 and the
// connectivity state Disconnected.
func New() *Reconciler {
	return &Reconciler{now: time.Now}
}

// Snapshot returns a copy of the current snapshot.
func (r *Reconciler) Snapshot() model.TelemetrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// ApplyTelemetry compares each incoming value against the stored one using
// exact float64 equality and returns a change event for every field that
// differed. Fields absent from values are left untouched. Events are
// produced in the fixed order speed, battery_voltage, motor_temp.
func (r *Reconciler) ApplyTelemetry(values map[model.Field]float64) []model.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []model.ChangeEvent
	at := r.now()
	for _, f := range model.TelemetryFields {
		v, ok := values[f]
		if !ok {
			continue
		}
		slot := r.fieldSlot(f)
		if slot == nil {
			continue
		}
		if *slot != v {
			*slot = v
			r.snap.UpdatedAt = at
			events = append(events, model.ChangeEvent{Field: f, Value: v, At: at})
		}
	}
	return events
}

// ApplyStatus applies a server-reported connectivity value.
func (r *Reconciler) ApplyStatus(st model.Status) []model.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setConnected(st.Connected)
}

// ApplyFetchFailure forces the Disconnected state. It emits a connectivity
// event only on the transition from Connected, so repeated failures are
// idempotent.
func (r *Reconciler) ApplyFetchFailure() []model.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setConnected(false)
}

func (r *Reconciler) setConnected(connected bool) []model.ChangeEvent {
	if r.snap.Connected == connected {
		return nil
	}
	at := r.now()
	r.snap.Connected = connected
	r.snap.UpdatedAt = at
	v := 0.0
	if connected {
		v = 1.0
	}
	return []model.ChangeEvent{{Field: model.FieldConnectionStatus, Value: v, At: at}}
}

// fieldSlot returns the snapshot slot for a numeric field, or nil for a
// field without one so a new field id can never corrupt another slot.
func (r *Reconciler) fieldSlot(f model.Field) *float64 {
	switch f {
	case model.FieldSpeed:
		return &r.snap.VehicleSpeed
	case model.FieldBatteryVoltage:
		return &r.snap.BatteryVoltage
	case model.FieldMotorTemp:
		return &r.snap.MotorTemp
	default:
		return nil
	}
}
