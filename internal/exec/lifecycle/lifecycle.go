// Package lifecycle drives a command from spawn to removal: it owns the
// process callbacks, finalization, output routing, history persistence
// and the deferred purge of finished records.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/execman/execman/internal/common/logger"
	"github.com/execman/execman/internal/events/bus"
	"github.com/execman/execman/internal/exec/color"
	"github.com/execman/execman/internal/exec/display"
	"github.com/execman/execman/internal/exec/history"
	"github.com/execman/execman/internal/exec/registry"
	"github.com/execman/execman/internal/exec/router"
	"github.com/execman/execman/internal/exec/runner"
)

// EventSubjectPrefix prefixes the subject of event-routed completions.
const EventSubjectPrefix = "exec.command."

// StartRequest describes one command to spawn. Routing fields follow
// the precedence event > pipe > target injection > default display.
type StartRequest struct {
	CommandLine string
	Name        string

	UseShell bool
	Detached bool
	Stdin    string // initial data written to the child's stdin, then closed
	Dir      string
	Env      []string

	Target         string // surface full name
	ToTarget       bool   // inject output lines into Target
	Pipe           string // pipe template, one re-injected command per line
	Event          string // event name, completion emitted as structured event
	LineNumbers    bool
	ShowReturnCode bool
	Color          string // "", "ansi", "decode" or "strip"
}

// Manager coordinates the registry, runner, router and event bus. All
// state transitions run under one mutex; process callbacks, purge
// timers and API calls never observe a half-finalized record.
type Manager struct {
	mu sync.Mutex

	reg      *registry.Registry
	displays *display.Registry
	router   *router.Router
	runner   *runner.Runner
	decoder  *color.Decoder
	bus      bus.EventBus
	logger   *logger.Logger

	// purgeDelay is read at finalize time, not cached, so config changes
	// apply to commands finishing later.
	purgeDelay   func() int
	defaultColor color.Policy

	timers map[*registry.Command]*time.Timer

	hist        history.Store
	histMaxSize int
}

// NewManager creates a lifecycle manager. purgeDelay defaults to 0
// (purge on the next tick) until SetPurgeDelay is called.
func NewManager(reg *registry.Registry, displays *display.Registry, rt *router.Router,
	run *runner.Runner, decoder *color.Decoder, eventBus bus.EventBus, log *logger.Logger) *Manager {
	return &Manager{
		reg:        reg,
		displays:   displays,
		router:     rt,
		runner:     run,
		decoder:    decoder,
		bus:        eventBus,
		logger:     log.WithFields(zap.String("component", "lifecycle")),
		purgeDelay: func() int { return 0 },
		timers:     make(map[*registry.Command]*time.Timer),
	}
}

// SetPurgeDelay installs the purge-delay source, in whole seconds. A
// negative value disables automatic removal.
func (m *Manager) SetPurgeDelay(f func() int) {
	m.purgeDelay = f
}

// SetDefaultColor sets the color policy used when a request carries none.
func (m *Manager) SetDefaultColor(p color.Policy) {
	m.defaultColor = p
}

// SetHistory enables persistence of finalized commands. maxSize caps
// the stored bytes per stream; negative means no cap.
func (m *Manager) SetHistory(store history.Store, maxSize int) {
	m.hist = store
	m.histMaxSize = maxSize
}

// Run registers a command record and spawns its process. The record is
// live on return; output and completion arrive asynchronously. A spawn
// failure leaves no record behind.
func (m *Manager) Run(ctx context.Context, req StartRequest) (*Snapshot, error) {
	if req.CommandLine == "" {
		return nil, fmt.Errorf("empty command line")
	}

	policy := m.defaultColor
	if req.Color != "" {
		p, err := color.ParsePolicy(req.Color)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := m.reg.Add()
	cmd.Name = req.Name
	cmd.CommandLine = req.CommandLine
	cmd.Detached = req.Detached
	cmd.Target = req.Target
	cmd.LineNumbers = req.LineNumbers
	cmd.ShowReturnCode = req.ShowReturnCode
	cmd.Color = policy

	switch {
	case req.Event != "":
		cmd.Route = registry.RouteEvent
		cmd.EventName = req.Event
	case req.Pipe != "":
		cmd.Route = registry.RoutePipe
		cmd.PipeTemplate = req.Pipe
	case req.ToTarget:
		cmd.Route = registry.RouteTarget
	default:
		cmd.Route = registry.RouteDisplay
	}

	id := cmd.ID
	opts := runner.Options{
		UseShell: req.UseShell,
		Detached: req.Detached,
		Stdin:    req.Stdin != "",
		Dir:      req.Dir,
		Env:      req.Env,
	}
	handle, err := m.runner.Spawn(ctx, req.CommandLine, opts, func(code int, stdout, stderr []byte) {
		m.onProcess(id, code, stdout, stderr)
	})
	if err != nil {
		m.reg.Remove(cmd)
		return nil, err
	}
	cmd.Handle = handle
	cmd.PID = handle.PID()

	if req.Stdin != "" {
		if werr := handle.SendInput([]byte(req.Stdin)); werr != nil {
			m.logger.Warn("stdin write failed", zap.Int("command_id", id), zap.Error(werr))
		}
		_ = handle.CloseStdin()
	}

	m.logger.Info("command started",
		zap.Int("command_id", id),
		zap.Int("pid", cmd.PID),
		zap.String("command", req.CommandLine),
		zap.Bool("detached", req.Detached))
	return snapshot(cmd), nil
}

// onProcess is the single entry point for runner callbacks. It carries
// the command id, never a record pointer; a removed record makes the
// callback a no-op.
func (m *Manager) onProcess(id int, code int, stdout, stderr []byte) {
	m.mu.Lock()

	cmd := m.reg.Get(id)
	if cmd == nil || cmd.Finished() {
		m.mu.Unlock()
		return
	}

	var flush func()
	if code == runner.CodeError {
		flush = m.finalizeLocked(cmd, -1)
	} else {
		cmd.Out.Append(stdout)
		cmd.Err.Append(stderr)
		if code >= 0 {
			flush = m.finalizeLocked(cmd, code)
		}
	}
	m.mu.Unlock()

	if flush != nil {
		flush()
	}
}

// finalizeLocked marks the command complete, persists it and schedules
// the deferred purge. It returns the output dispatch, which the caller
// must run after releasing the lock: routed lines can re-enter the
// manager as new commands.
func (m *Manager) finalizeLocked(cmd *registry.Command, rc int) func() {
	var flush func()
	if cmd.Route == registry.RouteEvent {
		flush = m.eventFlush(cmd)
	} else {
		flush = m.displayFlush(cmd, rc)
	}

	cmd.EndTime = time.Now()
	cmd.ReturnCode = rc
	cmd.Handle = nil
	cmd.PID = 0

	m.logger.Info("command finished",
		zap.Int("command_id", cmd.ID),
		zap.Int("return_code", rc),
		zap.Duration("elapsed", cmd.EndTime.Sub(cmd.StartTime)))

	if m.hist != nil {
		m.saveHistory(cmd)
	}

	delay := m.purgeDelay()
	if delay >= 0 {
		// Purge runs strictly after the current callback returns, even
		// with delay 0.
		d := time.Millisecond + time.Duration(delay)*time.Second
		m.timers[cmd] = time.AfterFunc(d, func() { m.purge(cmd) })
	}
	return flush
}

// displayFlush captures the buffered output while the lock is held and
// returns the dispatch that routes it. The dispatch reads only fields
// that are immutable after creation, so it is safe without the lock
// even if the record is purged meanwhile.
func (m *Manager) displayFlush(cmd *registry.Command, rc int) func() {
	outText := cmd.Out.String()
	errText := cmd.Err.String()

	return func() {
		surface := m.displays.Find(cmd.Target)
		m.router.Route(cmd, surface, true, outText)
		m.router.Route(cmd, surface, false, errText)

		if cmd.ShowReturnCode && !cmd.Detached && cmd.Route == registry.RouteDisplay {
			if surface == nil {
				surface = m.displays.Core()
			}
			if surface != nil {
				msg := fmt.Sprintf("unexpected end of command %d (\"%s\")", cmd.ID, cmd.CommandLine)
				if rc >= 0 {
					msg = fmt.Sprintf("end of command %d (\"%s\"), return code: %d",
						cmd.ID, cmd.CommandLine, rc)
				}
				surface.Print([]string{"exec_rc"}, msg)
			}
		}
	}
}

// eventFlush builds the event-routed completion while the lock is held:
// one flat event, no display writes. The dispatch publishes it without
// the lock so bus handlers can call back into the manager.
func (m *Manager) eventFlush(cmd *registry.Command) func() {
	out, err := m.decoder.Decode(cmd.Color, false, cmd.Out.String())
	if err != nil {
		out = ""
	}
	errOut, err := m.decoder.Decode(cmd.Color, false, cmd.Err.String())
	if err != nil {
		errOut = ""
	}

	data := map[string]string{
		"command": cmd.CommandLine,
		"number":  strconv.Itoa(cmd.ID),
		"name":    cmd.Name,
		"out":     out,
		"err":     errOut,
	}
	subject := EventSubjectPrefix + cmd.EventName
	id := cmd.ID

	return func() {
		ev := bus.NewEvent("exec.command.finished", "lifecycle", data)
		if perr := m.bus.Publish(context.Background(), subject, ev); perr != nil {
			m.logger.Warn("event publish failed",
				zap.Int("command_id", id),
				zap.String("subject", subject),
				zap.Error(perr))
		}
	}
}

func (m *Manager) saveHistory(cmd *registry.Command) {
	entry := &history.Entry{
		CommandID:   cmd.ID,
		Name:        cmd.Name,
		CommandLine: cmd.CommandLine,
		StartTime:   cmd.StartTime,
		EndTime:     cmd.EndTime,
		ReturnCode:  cmd.ReturnCode,
		Stdout:      truncate(cmd.Out.String(), m.histMaxSize),
		Stderr:      truncate(cmd.Err.String(), m.histMaxSize),
	}
	if err := m.hist.Save(context.Background(), entry); err != nil {
		m.logger.Warn("history save failed", zap.Int("command_id", cmd.ID), zap.Error(err))
	}
}

func truncate(s string, max int) string {
	if max < 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// purge removes a finished record when its timer fires. A record
// already removed by an explicit delete makes this a no-op.
func (m *Manager) purge(cmd *registry.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.timers, cmd)
	m.reg.Remove(cmd)
}

// Remove deletes a record by id or name, cancelling its purge timer and
// killing the process if still running.
func (m *Manager) Remove(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := m.reg.Find(token)
	if cmd == nil {
		return fmt.Errorf("command %q not found", token)
	}
	m.removeLocked(cmd)
	return nil
}

// RemoveFinished deletes every finished record, leaving running ones
// alone. Returns the number removed.
func (m *Manager) RemoveFinished() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, cmd := range m.reg.List() {
		if cmd.Finished() {
			m.removeLocked(cmd)
			removed++
		}
	}
	return removed
}

func (m *Manager) removeLocked(cmd *registry.Command) {
	if t, ok := m.timers[cmd]; ok {
		t.Stop()
		delete(m.timers, cmd)
	}
	m.reg.Remove(cmd)
}

type signaler interface {
	Signal(sig os.Signal) error
}

type inputWriter interface {
	SendInput(data []byte) error
	CloseStdin() error
}

// Signal sends a signal to a running command's process.
func (m *Manager) Signal(token string, sig os.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := m.reg.Find(token)
	if cmd == nil {
		return fmt.Errorf("command %q not found", token)
	}
	s, ok := cmd.Handle.(signaler)
	if !ok {
		return fmt.Errorf("command %d is not running", cmd.ID)
	}
	return s.Signal(sig)
}

// SendInput writes data to a running command's stdin. closeAfter closes
// the stream after the write.
func (m *Manager) SendInput(token string, data []byte, closeAfter bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := m.reg.Find(token)
	if cmd == nil {
		return fmt.Errorf("command %q not found", token)
	}
	w, ok := cmd.Handle.(inputWriter)
	if !ok {
		return fmt.Errorf("command %d is not running", cmd.ID)
	}
	if err := w.SendInput(data); err != nil {
		return err
	}
	if closeAfter {
		return w.CloseStdin()
	}
	return nil
}

// Shutdown dumps the remaining records at debug level and removes them
// all, running or not, releasing every process association.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cmd := range m.reg.List() {
		m.logger.Debug("record at shutdown",
			zap.Int("command_id", cmd.ID),
			zap.String("name", cmd.Name),
			zap.String("command", cmd.CommandLine),
			zap.Int("pid", cmd.PID),
			zap.Bool("running", cmd.Running()),
			zap.Int("return_code", cmd.ReturnCode),
			zap.Int("stdout_bytes", cmd.Out.Len()),
			zap.Int("stderr_bytes", cmd.Err.Len()))
	}

	for cmd, t := range m.timers {
		t.Stop()
		delete(m.timers, cmd)
	}
	m.reg.RemoveAll()
}
