//
//
package command

// Outcome is the result of a mutating command.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Parameters are the test parameters stored in the controller.
type Parameters struct {
	PipeDiameter      float64 `json:"pipe_diameter"`      // mm
	PipeLength        float64 `json:"pipe_length"`        // mm
	DeflectionPercent float64 `json:"deflection_percent"` // % of diameter
	TestSpeed         float64 `json:"test_speed"`         // mm/min
	MaxStroke         float64 `json:"max_stroke"`         // mm
	MaxForce          float64 `json:"max_force"`          // kN
	Connected         bool    `json:"connected"`
}

// ParametersUpdate is a partial parameter write; nil fields are left alone.
type ParametersUpdate struct {
	PipeDiameter      *float64 `json:"pipe_diameter,omitempty"`
	PipeLength        *float64 `json:"pipe_length,omitempty"`
	DeflectionPercent *float64 `json:"deflection_percent,omitempty"`
	TestSpeed         *float64 `json:"test_speed,omitempty"`
	MaxStroke         *float64 `json:"max_stroke,omitempty"`
	MaxForce          *float64 `json:"max_force,omitempty"`
}

// Empty reports whether u changes nothing.
func (u ParametersUpdate) Empty() bool {
	return u.PipeDiameter == nil && u.PipeLength == nil && u.DeflectionPercent == nil &&
		u.TestSpeed == nil && u.MaxStroke == nil && u.MaxForce == nil
}

// auditParams flattens the set fields for the audit trail.
func (u ParametersUpdate) auditParams() map[string]any {
	params := make(map[string]any)
	set := func(key string, v *float64) {
		if v != nil {
			params[key] = *v
		}
	}
	set("pipe_diameter", u.PipeDiameter)
	set("pipe_length", u.PipeLength)
	set("deflection_percent", u.DeflectionPercent)
	set("test_speed", u.TestSpeed)
	set("max_stroke", u.MaxStroke)
	set("max_force", u.MaxForce)
	return params
}

// ConnectionStatus is the backend's view of its PLC link.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	IP        string `json:"ip"`
	Message   string `json:"message"`
}

// Mode is the control mode: local push buttons or remote dashboard.
type Mode struct {
	RemoteMode bool   `json:"remote_mode"`
	Mode       string `json:"mode"`
}

// TestRecord is one stored test.
type TestRecord struct {
	ID                int64       `json:"id"`
	SampleID          *string     `json:"sample_id"`
	Operator          *string     `json:"operator"`
	TestDate          string      `json:"test_date"`
	PipeDiameter      float64     `json:"pipe_diameter"`
	PipeLength        float64     `json:"pipe_length"`
	DeflectionPercent float64     `json:"deflection_percent"`
	ForceAtTarget     *float64    `json:"force_at_target"`
	MaxForce          *float64    `json:"max_force"`
	RingStiffness     *float64    `json:"ring_stiffness"`
	SNClass           *int        `json:"sn_class"`
	Passed            bool        `json:"passed"`
	TestSpeed         *float64    `json:"test_speed"`
	Duration          *float64    `json:"duration"`
	Notes             *string     `json:"notes"`
	DataPoints        []DataPoint `json:"data_points,omitempty"`
}

// DataPoint is one stored sample of a test.
type DataPoint struct {
	ID         int64    `json:"id"`
	TestID     int64    `json:"test_id"`
	Timestamp  float64  `json:"timestamp"`
	Force      float64  `json:"force"`
	Deflection float64  `json:"deflection"`
	Position   *float64 `json:"position"`
}

// TestsPage is one page of the test history.
type TestsPage struct {
	Tests      []TestRecord `json:"tests"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

// Alarm is one stored alarm.
type Alarm struct {
	ID           int64   `json:"id"`
	Code         string  `json:"alarm_code"`
	Message      string  `json:"message"`
	Severity     string  `json:"severity"`
	Timestamp    string  `json:"timestamp"`
	Acknowledged bool    `json:"acknowledged"`
	AckTimestamp *string `json:"ack_timestamp"`
	AckBy        *string `json:"ack_by"`
}

// AlarmsPage is one page of the alarm history.
type AlarmsPage struct {
	Alarms   []Alarm `json:"alarms"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}
