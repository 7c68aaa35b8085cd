package model

import "time"

// Field identifies one observed dashboard quantity.
type Field string

const (
	FieldSpeed            Field = "speed"
	FieldBatteryVoltage   Field = "battery_voltage"
	FieldMotorTemp        Field = "motor_temp"
	FieldConnectionStatus Field = "connection_status"
)

// TelemetryFields lists the numeric CAN fields in the order they are
// reconciled within a cycle.
var TelemetryFields = []Field{FieldSpeed, FieldBatteryVoltage, FieldMotorTemp}

// TelemetrySnapshot holds the most recently observed value for every field.
// Fields update independently; a cycle may change speed without a new
// voltage reading arriving.
type TelemetrySnapshot struct {
	VehicleSpeed   float64   `json:"vehicle_speed"`
	BatteryVoltage float64   `json:"battery_voltage"`
	MotorTemp      float64   `json:"motor_temp"`
	Connected      bool      `json:"connected"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status is the decoded body of the gateway status endpoint.
type Status struct {
	Connected bool `json:"connected"`
}

// ChangeEvent is emitted when a field's stored value differs from the
// incoming one. For FieldConnectionStatus, Value is 1 (connected) or 0.
type ChangeEvent struct {
	Field Field     `json:"field"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Sample is a recorded change event, as persisted by the history store.
type Sample struct {
	Field     Field     `json:"field"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
