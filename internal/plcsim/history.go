//
//
package plcsim

import (
	"sort"
	"sync"
	"time"

	"github.com/khalid729/grp-stiffness-test-machine/internal/command"
)

// History keeps completed tests and raised alarms in memory, newest first
// when listed.
type History struct {
	mu        sync.RWMutex
	tests     map[int64]command.TestRecord
	alarms    []command.Alarm
	nextTest  int64
	nextAlarm int64
	now       func() time.Time
}

// NewHistory creates an empty store.
func NewHistory() *History {
	return &History{
		tests: make(map[int64]command.TestRecord),
		now:   time.Now,
	}
}

// AddTest stores rec under a fresh ID and returns that ID.
func (h *History) AddTest(rec command.TestRecord) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextTest++
	rec.ID = h.nextTest
	if rec.TestDate == "" {
		rec.TestDate = h.now().UTC().Format(time.RFC3339)
	}
	for i := range rec.DataPoints {
		rec.DataPoints[i].ID = int64(i + 1)
		rec.DataPoints[i].TestID = rec.ID
	}
	h.tests[rec.ID] = rec
	return rec.ID
}

// Test returns the stored test with its data points.
func (h *History) Test(id int64) (command.TestRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.tests[id]
	if !ok {
		return command.TestRecord{}, false
	}
	rec.DataPoints = append([]command.DataPoint(nil), rec.DataPoints...)
	return rec, true
}

// DeleteTest removes a test; it reports whether the test existed.
func (h *History) DeleteTest(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tests[id]; !ok {
		return false
	}
	delete(h.tests, id)
	return true
}

// Tests returns one page of tests, newest first, without data points.
// page is 1-based.
func (h *History) Tests(page, pageSize int) command.TestsPage {
	h.mu.RLock()
	all := make([]command.TestRecord, 0, len(h.tests))
	for _, rec := range h.tests {
		rec.DataPoints = nil
		all = append(all, rec)
	}
	h.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	out := command.TestsPage{
		Tests:    paginate(all, page, pageSize),
		Total:    len(all),
		Page:     page,
		PageSize: pageSize,
	}
	out.TotalPages = (out.Total + pageSize - 1) / pageSize
	return out
}

// RaiseAlarm records an alarm and returns it with its ID and timestamp.
func (h *History) RaiseAlarm(code, message, severity string) command.Alarm {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextAlarm++
	a := command.Alarm{
		ID:        h.nextAlarm,
		Code:      code,
		Message:   message,
		Severity:  severity,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	h.alarms = append(h.alarms, a)
	return a
}

// Alarms returns one page of alarms, newest first.
func (h *History) Alarms(activeOnly bool, page, pageSize int) command.AlarmsPage {
	h.mu.RLock()
	list := make([]command.Alarm, 0, len(h.alarms))
	for i := len(h.alarms) - 1; i >= 0; i-- {
		if activeOnly && h.alarms[i].Acknowledged {
			continue
		}
		list = append(list, h.alarms[i])
	}
	h.mu.RUnlock()

	return command.AlarmsPage{
		Alarms:   paginate(list, page, pageSize),
		Page:     page,
		PageSize: pageSize,
	}
}

// Acknowledge marks one alarm acknowledged; it reports whether it exists.
func (h *History) Acknowledge(id int64, by string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.alarms {
		if h.alarms[i].ID == id {
			h.ack(&h.alarms[i], by)
			return true
		}
	}
	return false
}

// AcknowledgeAll marks every active alarm acknowledged and returns how many
// changed.
func (h *History) AcknowledgeAll(by string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for i := range h.alarms {
		if !h.alarms[i].Acknowledged {
			h.ack(&h.alarms[i], by)
			n++
		}
	}
	return n
}

func (h *History) ack(a *command.Alarm, by string) {
	ts := h.now().UTC().Format(time.RFC3339)
	a.Acknowledged = true
	a.AckTimestamp = &ts
	if by != "" {
		a.AckBy = &by
	} else {
		a.AckBy = nil
	}
}

func paginate[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
