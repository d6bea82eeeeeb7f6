//
//
package command

import (
	"context"
	"time"
)

// Gateway is the request/response API of the backend.
type Gateway interface {
	// Status
	ConnectionStatus(ctx context.Context) (*ConnectionStatus, error)
	Reconnect(ctx context.Context) (Outcome, error)
	Parameters(ctx context.Context) (*Parameters, error)
	SetParameters(ctx context.Context, update ParametersUpdate) (Outcome, error)

	// Test control
	Start(ctx context.Context) (Outcome, error)
	Stop(ctx context.Context) (Outcome, error)
	Home(ctx context.Context) (Outcome, error)

	// Servo
	EnableServo(ctx context.Context) (Outcome, error)
	DisableServo(ctx context.Context) (Outcome, error)
	ResetAlarm(ctx context.Context) (Outcome, error)

	// Jog over request/response, for clients without the realtime channel
	SetJogSpeed(ctx context.Context, velocity float64) (Outcome, error)
	JogForward(ctx context.Context, on bool) (Outcome, error)
	JogBackward(ctx context.Context, on bool) (Outcome, error)

	// Clamps
	LockUpper(ctx context.Context) (Outcome, error)
	LockLower(ctx context.Context) (Outcome, error)
	UnlockAll(ctx context.Context) (Outcome, error)

	// Control mode
	Mode(ctx context.Context) (*Mode, error)
	SetRemoteMode(ctx context.Context, remote bool) (Outcome, error)

	// History
	Tests(ctx context.Context, page, pageSize int) (*TestsPage, error)
	Test(ctx context.Context, id int64) (*TestRecord, error)
	DeleteTest(ctx context.Context, id int64) (Outcome, error)
	Alarms(ctx context.Context, activeOnly bool, page int) (*AlarmsPage, error)
	AcknowledgeAlarm(ctx context.Context, id int64, ackBy string) (Outcome, error)
	AcknowledgeAllAlarms(ctx context.Context, ackBy string) (Outcome, error)

	// Reports
	PDFReportURL(testID int64) string
	ExcelExportURL(startDate, endDate string) string
}

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action, requestID, code, message string, latency time.Duration)
}
