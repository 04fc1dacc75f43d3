package lifecycle

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/execman/execman/internal/common/logger"
	"github.com/execman/execman/internal/events/bus"
	"github.com/execman/execman/internal/exec/color"
	"github.com/execman/execman/internal/exec/display"
	"github.com/execman/execman/internal/exec/registry"
	"github.com/execman/execman/internal/exec/router"
	"github.com/execman/execman/internal/exec/runner"
)

type printCall struct {
	tags    []string
	message string
}

type fakeSurface struct {
	mu       sync.Mutex
	name     string
	prints   []printCall
	commands []string
}

func (f *fakeSurface) FullName() string { return f.name }
func (f *fakeSurface) Print(tags []string, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prints = append(f.prints, printCall{tags: tags, message: message})
}
func (f *fakeSurface) Command(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, line)
}

func (f *fakeSurface) hasPrint(message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.prints {
		if p.message == message {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T) (*Manager, *fakeSurface, *bus.MemoryEventBus) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	core := &fakeSurface{name: "core"}
	displays := display.NewRegistry(core)
	decoder := color.NewDecoder(color.NewAnsiModifier())
	rt := router.New(decoder, displays, log)
	run := runner.New("sh", log)
	eventBus := bus.NewMemoryEventBus(log)
	reg := registry.NewRegistry(log)

	m := NewManager(reg, displays, rt, run, decoder, eventBus, log)
	m.SetPurgeDelay(func() int { return -1 })
	return m, core, eventBus
}

// addRecord creates a record the way Run would, without spawning a
// process.
func addRecord(m *Manager) *registry.Command {
	cmd := m.reg.Add()
	cmd.CommandLine = "true"
	return cmd
}

func TestOnProcess_AppendsChunksBeforeFinalizing(t *testing.T) {
	m, core, _ := newTestManager(t)

	cmd := addRecord(m)
	cmd.ShowReturnCode = false
	id := cmd.ID

	m.onProcess(id, runner.CodeRunning, []byte("par"), nil)
	m.onProcess(id, 0, []byte("tial\n"), nil)

	if !cmd.Finished() {
		t.Fatal("expected record to be finalized")
	}
	if cmd.ReturnCode != 0 {
		t.Errorf("expected return code 0, got %d", cmd.ReturnCode)
	}
	if cmd.Handle != nil || cmd.PID != 0 {
		t.Error("expected handle and pid to be cleared")
	}
	if len(core.prints) != 1 || core.prints[0].message != " \tpartial" {
		t.Errorf("expected one line \"partial\" on core, got %+v", core.prints)
	}
}

func TestOnProcess_UnknownIDIsNoOp(t *testing.T) {
	m, core, _ := newTestManager(t)

	m.onProcess(42, 0, []byte("late"), nil)

	if len(core.prints) != 0 {
		t.Error("expected callback for unknown record to do nothing")
	}
}

func TestOnProcess_AfterFinalizeIsNoOp(t *testing.T) {
	m, core, _ := newTestManager(t)

	cmd := addRecord(m)
	m.onProcess(cmd.ID, 0, nil, nil)
	before := len(core.prints)

	m.onProcess(cmd.ID, 0, []byte("late\n"), nil)

	if len(core.prints) != before {
		t.Error("expected callback after finalization to do nothing")
	}
}

func TestFinalize_ReturnCodeSummary(t *testing.T) {
	m, core, _ := newTestManager(t)

	cmd := addRecord(m)
	cmd.ShowReturnCode = true

	m.onProcess(cmd.ID, 3, nil, nil)

	if len(core.prints) != 1 {
		t.Fatalf("expected only the summary line, got %d prints", len(core.prints))
	}
	p := core.prints[0]
	if p.tags[0] != "exec_rc" {
		t.Errorf("expected exec_rc tag, got %v", p.tags)
	}
	if !strings.Contains(p.message, "return code: 3") {
		t.Errorf("expected summary with return code, got %q", p.message)
	}
}

func TestFinalize_ErrorSentinelProducesUnexpectedEnd(t *testing.T) {
	m, core, _ := newTestManager(t)

	cmd := addRecord(m)
	cmd.ShowReturnCode = true

	m.onProcess(cmd.ID, runner.CodeError, nil, nil)

	if cmd.ReturnCode != -1 {
		t.Errorf("expected return code -1, got %d", cmd.ReturnCode)
	}
	if len(core.prints) != 1 {
		t.Fatalf("expected one summary line, got %d", len(core.prints))
	}
	msg := core.prints[0].message
	if !strings.HasPrefix(msg, "unexpected end of command") {
		t.Errorf("expected unexpected-end message, got %q", msg)
	}
	if strings.Contains(msg, "return code") {
		t.Errorf("expected no numeric return code in message, got %q", msg)
	}
}

func TestFinalize_SummarySuppressedForPipe(t *testing.T) {
	m, core, _ := newTestManager(t)

	cmd := addRecord(m)
	cmd.ShowReturnCode = true
	cmd.Route = registry.RoutePipe
	cmd.PipeTemplate = "echo $line"

	m.onProcess(cmd.ID, 0, nil, nil)

	if len(core.prints) != 0 {
		t.Errorf("expected no summary for piped command, got %+v", core.prints)
	}
}

func TestFinalize_SummarySuppressedForDetached(t *testing.T) {
	m, core, _ := newTestManager(t)

	cmd := addRecord(m)
	cmd.ShowReturnCode = true
	cmd.Detached = true

	m.onProcess(cmd.ID, 0, nil, nil)

	if len(core.prints) != 0 {
		t.Errorf("expected no summary for detached command, got %+v", core.prints)
	}
}

func TestFinalize_EventBranchEmitsFlatEvent(t *testing.T) {
	m, core, eventBus := newTestManager(t)

	received := make(chan *bus.Event, 1)
	_, err := eventBus.Subscribe(EventSubjectPrefix+"done", func(ctx context.Context, ev *bus.Event) error {
		received <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	cmd := addRecord(m)
	cmd.Name = "backup"
	cmd.Route = registry.RouteEvent
	cmd.EventName = "done"
	cmd.ShowReturnCode = true

	m.onProcess(cmd.ID, runner.CodeRunning, []byte("saved\n"), []byte("warn\n"))
	m.onProcess(cmd.ID, 0, nil, nil)

	select {
	case ev := <-received:
		for _, key := range []string{"command", "number", "name", "out", "err"} {
			if _, ok := ev.Data[key]; !ok {
				t.Errorf("expected event data key %q, got %v", key, ev.Data)
			}
		}
		if ev.Data["name"] != "backup" || ev.Data["out"] != "saved\n" || ev.Data["err"] != "warn\n" {
			t.Errorf("unexpected event data %v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	if len(core.prints) != 0 || len(core.commands) != 0 {
		t.Error("expected no display writes in the event branch")
	}
}

func TestFinalize_PurgeRemovesRecordAsynchronously(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetPurgeDelay(func() int { return 0 })

	cmd := addRecord(m)
	id := cmd.ID

	// The purge timer removes the record strictly after finalization,
	// never inside it. The manager lock is held across the check, so the
	// timer callback cannot race it.
	m.mu.Lock()
	flush := m.finalizeLocked(cmd, 0)
	if m.reg.Get(id) == nil {
		m.mu.Unlock()
		t.Fatal("expected record to still exist right after finalization")
	}
	m.mu.Unlock()
	flush()

	deadline := time.Now().Add(time.Second)
	for m.reg.Get(id) != nil {
		if time.Now().After(deadline) {
			t.Fatal("record was never purged")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFinalize_NegativeDelayDisablesPurge(t *testing.T) {
	m, _, _ := newTestManager(t)

	cmd := addRecord(m)
	m.onProcess(cmd.ID, 0, nil, nil)

	time.Sleep(50 * time.Millisecond)
	if m.reg.Get(cmd.ID) == nil {
		t.Error("expected record to persist with negative purge delay")
	}
}

func TestRemove_CancelsPurgeTimer(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetPurgeDelay(func() int { return 60 })

	cmd := addRecord(m)
	m.onProcess(cmd.ID, 0, nil, nil)

	if err := m.Remove("0"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(m.timers) != 0 {
		t.Error("expected pending purge timer to be cancelled")
	}
	if m.reg.Count() != 0 {
		t.Error("expected record to be removed")
	}
}

func TestPurge_AfterExplicitRemovalIsNoOp(t *testing.T) {
	m, _, _ := newTestManager(t)

	cmd := addRecord(m)
	m.onProcess(cmd.ID, 0, nil, nil)
	if err := m.Remove("0"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	// A late timer firing must not error and must not remove anything
	// twice.
	m.purge(cmd)

	if m.reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", m.reg.Count())
	}
}

func TestRemove_UnknownToken(t *testing.T) {
	m, _, _ := newTestManager(t)

	if err := m.Remove("nope"); err == nil {
		t.Error("expected error for unknown token")
	}
}

func TestRemoveFinished_KeepsRunningRecords(t *testing.T) {
	m, _, _ := newTestManager(t)

	running := addRecord(m)
	running.Handle = &stubHandle{}
	done := addRecord(m)
	m.onProcess(done.ID, 0, nil, nil)

	removed := m.RemoveFinished()

	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if m.reg.Get(running.ID) == nil {
		t.Error("expected running record to survive")
	}
}

func TestInspect_ReturnsSnapshot(t *testing.T) {
	m, _, _ := newTestManager(t)

	cmd := addRecord(m)
	cmd.Name = "probe"
	m.onProcess(cmd.ID, 7, []byte("out\n"), nil)

	snap, ok := m.Inspect("probe")
	if !ok {
		t.Fatal("expected snapshot for named record")
	}
	if snap.ReturnCode != 7 || snap.Running || snap.StdoutBytes != 4 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if _, ok := m.Inspect("missing"); ok {
		t.Error("expected no snapshot for unknown token")
	}
}

func TestShutdown_RemovesEverything(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetPurgeDelay(func() int { return 60 })

	running := addRecord(m)
	handle := &stubHandle{}
	running.Handle = handle
	done := addRecord(m)
	m.onProcess(done.ID, 0, nil, nil)

	m.Shutdown()

	if m.reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", m.reg.Count())
	}
	if !handle.unregistered {
		t.Error("expected running handle to be unregistered at shutdown")
	}
	if len(m.timers) != 0 {
		t.Error("expected all timers stopped at shutdown")
	}
}

func TestRun_SpawnsAndFinalizes(t *testing.T) {
	m, core, _ := newTestManager(t)

	snap, err := m.Run(context.Background(), StartRequest{
		CommandLine:    "echo hello",
		UseShell:       true,
		ShowReturnCode: true,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !snap.Running || snap.PID == 0 {
		t.Errorf("expected running snapshot with pid, got %+v", snap)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, ok := m.Inspect("0")
		if !ok {
			t.Fatal("record disappeared while waiting")
		}
		if !got.Running {
			if got.ReturnCode != 0 {
				t.Errorf("expected return code 0, got %d", got.ReturnCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("command never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Output is dispatched after the callback releases the manager lock,
	// so the print can land just after the snapshot shows finished.
	deadline = time.Now().Add(time.Second)
	for !core.hasPrint(" \thello") {
		if time.Now().After(deadline) {
			t.Fatal("echoed line never reached the core surface")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_PipeReinjectionDoesNotBlockManager(t *testing.T) {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	// The core surface re-injects command lines straight back into Run,
	// exactly as the daemon wires it. Routing a piped line must not hold
	// the manager lock, or this call deadlocks.
	var m *Manager
	core := display.NewBufferSurface("core", 100, func(surfaceName, line string) {
		if _, rerr := m.Run(context.Background(), StartRequest{
			CommandLine: line,
			UseShell:    true,
			Target:      surfaceName,
		}); rerr != nil {
			t.Errorf("re-injected command failed to start: %v", rerr)
		}
	})
	displays := display.NewRegistry(core)
	decoder := color.NewDecoder(color.NewAnsiModifier())
	rt := router.New(decoder, displays, log)
	run := runner.New("sh", log)
	eventBus := bus.NewMemoryEventBus(log)
	reg := registry.NewRegistry(log)
	m = NewManager(reg, displays, rt, run, decoder, eventBus, log)
	m.SetPurgeDelay(func() int { return -1 })
	t.Cleanup(m.Shutdown)

	if _, err := m.Run(context.Background(), StartRequest{
		CommandLine: "echo x",
		UseShell:    true,
		Pipe:        "echo piped $line",
	}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Both the piped command and the command it re-injected must finish.
	deadline := time.Now().Add(5 * time.Second)
	for {
		finished := 0
		snaps := m.InspectAll()
		for _, s := range snaps {
			if !s.Running {
				finished++
			}
		}
		if len(snaps) == 2 && finished == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("re-injection blocked the manager: %d records, %d finished",
				len(snaps), finished)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun_EmptyCommandLine(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.Run(context.Background(), StartRequest{}); err == nil {
		t.Error("expected error for empty command line")
	}
	if m.reg.Count() != 0 {
		t.Error("expected no record for failed run")
	}
}

type stubHandle struct {
	unregistered bool
}

func (s *stubHandle) Unregister() { s.unregistered = true }
func (s *stubHandle) PID() int    { return 7 }
