package plcsim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khalid729/grp-stiffness-test-machine/internal/command"
	"github.com/khalid729/grp-stiffness-test-machine/internal/machine"
	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

const waitTimeout = 2 * time.Second

type testRig struct {
	machine *Machine
	server  *Server
	http    *httptest.Server
	gateway *command.Client
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	m := newTestMachine(t)
	s := NewServer(m, ServerOptions{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	gw, err := command.NewClient(command.Options{
		BaseURL:        ts.URL,
		CommandTimeout: time.Second,
		QueryTimeout:   time.Second,
		Limits:         testLimits,
	})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return &testRig{machine: m, server: s, http: ts, gateway: gw}
}

func (r *testRig) socketURL() string {
	return "ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws"
}

// runCycle drives one full test through the server without sleeping.
func (r *testRig) runCycle(t *testing.T) {
	t.Helper()
	if out := r.machine.Execute(OpStart, nil); !out.Success {
		t.Fatalf("Execute(start) failed: %s", out.Message)
	}
	for i := 0; i < 20; i++ {
		r.server.Tick(time.Second)
		if r.machine.Snapshot().StatusCode == machine.StatusComplete {
			return
		}
	}
	t.Fatal("test cycle did not complete")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerCommands(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	out, err := rig.gateway.JogForward(ctx, true)
	if err != nil || !out.Success || out.Message != "Jog forward started" {
		t.Errorf("JogForward(true) = %+v, %v", out, err)
	}

	out, err = rig.gateway.Start(ctx)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !out.Success || out.Message != "Test started" {
		t.Errorf("Expected test started, got %+v", out)
	}

	out, err = rig.gateway.Start(ctx)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if out.Success {
		t.Error("Expected a second start to be rejected")
	}

	out, err = rig.gateway.Stop(ctx)
	if err != nil || !out.Success {
		t.Fatalf("Stop() = %+v, %v", out, err)
	}

	mode, err := rig.gateway.Mode(ctx)
	if err != nil {
		t.Fatalf("Mode() failed: %v", err)
	}
	if !mode.RemoteMode || mode.Mode != "remote" {
		t.Errorf("Expected remote mode, got %+v", mode)
	}

	out, err = rig.gateway.SetRemoteMode(ctx, false)
	if err != nil || out.Message != "Switched to Local mode" {
		t.Fatalf("SetRemoteMode(false) = %+v, %v", out, err)
	}
}

func TestServerParameters(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	length := 500.0
	out, err := rig.gateway.SetParameters(ctx, command.ParametersUpdate{PipeLength: &length})
	if err != nil || !out.Success || out.Message != "Parameters updated successfully" {
		t.Fatalf("SetParameters() = %+v, %v", out, err)
	}

	p, err := rig.gateway.Parameters(ctx)
	if err != nil {
		t.Fatalf("Parameters() failed: %v", err)
	}
	if p.PipeLength != 500 || p.TestSpeed != 100 || !p.Connected {
		t.Errorf("Expected updated parameters, got %+v", p)
	}

	resp, err := http.Post(rig.http.URL+"/api/parameters", "application/json", strings.NewReader(`{"pipe_diameter": -1}`))
	if err != nil {
		t.Fatalf("POST /api/parameters failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !strings.Contains(body.Detail, "pipe diameter") {
		t.Errorf("Expected pipe diameter detail, got %q (%v)", body.Detail, err)
	}
}

func TestServerJogSpeedOutOfBand(t *testing.T) {
	rig := newTestRig(t)

	resp, err := http.Post(rig.http.URL+"/api/jog/speed", "application/json", strings.NewReader(`{"velocity": 400}`))
	if err != nil {
		t.Fatalf("POST /api/jog/speed failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}

	out, err := rig.gateway.SetJogSpeed(context.Background(), 25)
	if err != nil || out.Message != "Jog speed set to 25 mm/min" {
		t.Errorf("SetJogSpeed(25) = %+v, %v", out, err)
	}
}

func TestServerConnection(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.machine.DropLink()
	st, err := rig.gateway.ConnectionStatus(ctx)
	if err != nil {
		t.Fatalf("ConnectionStatus() failed: %v", err)
	}
	if st.Connected {
		t.Error("Expected PLC link to be down")
	}

	out, err := rig.gateway.Reconnect(ctx)
	if err != nil || !out.Success || out.Message != "Reconnected successfully" {
		t.Fatalf("Reconnect() = %+v, %v", out, err)
	}
	st, err = rig.gateway.ConnectionStatus(ctx)
	if err != nil || !st.Connected || st.Message != "Connected" {
		t.Errorf("ConnectionStatus() = %+v, %v", st, err)
	}
}

func TestServerHistory(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.runCycle(t)

	page, err := rig.gateway.Tests(ctx, 1, 20)
	if err != nil {
		t.Fatalf("Tests() failed: %v", err)
	}
	if page.Total != 1 || len(page.Tests) != 1 || !page.Tests[0].Passed {
		t.Fatalf("Expected one passing test, got %+v", page)
	}

	rec, err := rig.gateway.Test(ctx, page.Tests[0].ID)
	if err != nil {
		t.Fatalf("Test() failed: %v", err)
	}
	if len(rec.DataPoints) == 0 || rec.SNClass == nil || *rec.SNClass != 5000 {
		t.Errorf("Expected SN 5000 test with data points, got %+v", rec)
	}

	if _, err := rig.gateway.Test(ctx, 99); !errors.Is(err, command.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	out, err := rig.gateway.DeleteTest(ctx, rec.ID)
	if err != nil || out.Message != "Test 1 deleted" {
		t.Errorf("DeleteTest() = %+v, %v", out, err)
	}
	if _, err := rig.gateway.DeleteTest(ctx, rec.ID); !errors.Is(err, command.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}

	alarms, err := rig.gateway.Alarms(ctx, true, 1)
	if err != nil {
		t.Fatalf("Alarms() failed: %v", err)
	}
	if len(alarms.Alarms) != 2 || alarms.Alarms[0].Code != "I002" {
		t.Fatalf("Expected I002 and I001 alarms, got %+v", alarms.Alarms)
	}

	out, err = rig.gateway.AcknowledgeAlarm(ctx, alarms.Alarms[0].ID, "operator")
	if err != nil || !out.Success {
		t.Errorf("AcknowledgeAlarm() = %+v, %v", out, err)
	}
	if _, err := rig.gateway.AcknowledgeAlarm(ctx, 99, ""); !errors.Is(err, command.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown alarm, got %v", err)
	}
	out, err = rig.gateway.AcknowledgeAllAlarms(ctx, "")
	if err != nil || out.Message != "1 alarms acknowledged" {
		t.Errorf("AcknowledgeAllAlarms() = %+v, %v", out, err)
	}
}

func TestServerReportUnavailable(t *testing.T) {
	rig := newTestRig(t)

	resp, err := http.Get(rig.gateway.PDFReportURL(1))
	if err != nil {
		t.Fatalf("GET pdf report failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}
}

func TestServerSocketStream(t *testing.T) {
	rig := newTestRig(t)

	client := telemetry.NewClient(telemetry.Options{URL: rig.socketURL(), Origin: "http://localhost/"})
	t.Cleanup(func() { _ = client.Close() })

	frames := make(chan telemetry.Frame, 64)
	for _, topic := range telemetry.Topics {
		client.On(topic, func(f telemetry.Frame) { frames <- f })
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	waitFor(t, "subscription", func() bool { return rig.server.Subscribers() == 1 })

	rig.runCycle(t)

	var phases []machine.Phase
	var complete *TestComplete
	deadline := time.After(waitTimeout)
	for complete == nil {
		select {
		case f := <-frames:
			switch f.Topic {
			case telemetry.TopicTelemetry:
				s, err := machine.DecodeSnapshot(f.Payload)
				if err != nil {
					t.Fatalf("DecodeSnapshot() failed: %v", err)
				}
				phases = append(phases, s.Phase)
			case telemetry.TopicTestComplete:
				var tc TestComplete
				if err := f.Decode(&tc); err != nil {
					t.Fatalf("Decode() failed: %v", err)
				}
				complete = &tc
			}
		case <-deadline:
			t.Fatalf("no test_complete frame, phases so far %v", phases)
		}
	}

	if len(phases) == 0 || phases[0] != machine.PhaseTesting || phases[len(phases)-1] != machine.PhaseComplete {
		t.Errorf("Expected phases from testing to complete, got %v", phases)
	}
	if !complete.Passed || complete.SNClass != 5000 {
		t.Errorf("Expected passing SN 5000 result, got %+v", complete)
	}
}

func TestServerSocketJog(t *testing.T) {
	rig := newTestRig(t)

	client := telemetry.NewClient(telemetry.Options{URL: rig.socketURL(), Origin: "http://localhost/"})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	waitFor(t, "subscription", func() bool { return rig.server.Subscribers() == 1 })

	if err := client.SetJogSpeed(60); err != nil {
		t.Fatalf("SetJogSpeed() failed: %v", err)
	}
	if err := client.JogForward(true); err != nil {
		t.Fatalf("JogForward() failed: %v", err)
	}
	waitFor(t, "jog motion", func() bool {
		rig.machine.Step(100 * time.Millisecond)
		return rig.machine.Snapshot().Position > 0
	})

	client.Disconnect()
	waitFor(t, "client removal", func() bool { return rig.server.Clients() == 0 })

	before := rig.machine.Snapshot().Position
	rig.machine.Step(time.Second)
	if after := rig.machine.Snapshot().Position; after != before {
		t.Errorf("Expected jog to stop when the client left, moved %v -> %v", before, after)
	}
}

func TestServerDropClients(t *testing.T) {
	rig := newTestRig(t)

	client := telemetry.NewClient(telemetry.Options{URL: rig.socketURL(), Origin: "http://localhost/"})
	t.Cleanup(func() { _ = client.Close() })

	status := make(chan bool, 8)
	client.On(telemetry.TopicConnectionStatus, func(f telemetry.Frame) {
		var cs telemetry.ConnectionStatus
		if err := f.Decode(&cs); err == nil {
			status <- cs.Connected
		}
	})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	next := func() bool {
		t.Helper()
		select {
		case c := <-status:
			return c
		case <-time.After(waitTimeout):
			t.Fatal("no connection status frame")
			return false
		}
	}

	// Local connect, then the backend greeting.
	if !next() || !next() {
		t.Fatal("Expected two connected=true frames after connect")
	}

	rig.server.DropClients()
	if next() {
		t.Error("Expected connected=false after the backend dropped the socket")
	}
	if client.IsConnected() {
		t.Error("Expected client to report the loss")
	}
}
