// Package registry tracks every in-flight or recently finished external
// command: identity, lifecycle timestamps, output buffers and routing
// policy.
package registry

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/execman/execman/internal/common/logger"
	"github.com/execman/execman/internal/exec/color"
)

// RouteMode selects the single destination for a command's output.
// The modes are mutually exclusive: a pipe template overrides injection
// into a surface, which overrides the default tagged display, and an
// event name replaces display output entirely.
type RouteMode int

const (
	// RouteDisplay prints tagged lines on the resolved surface (or the
	// core surface when the target cannot be resolved).
	RouteDisplay RouteMode = iota
	// RouteTarget injects each output line into the target surface.
	RouteTarget
	// RoutePipe re-injects each output line as a new command.
	RoutePipe
	// RouteEvent emits one structured event at finalization.
	RouteEvent
)

func (m RouteMode) String() string {
	switch m {
	case RouteTarget:
		return "target"
	case RoutePipe:
		return "pipe"
	case RouteEvent:
		return "event"
	default:
		return "display"
	}
}

// ProcessHandle is the registry's view of a pending process-runner
// registration. Unregister must be safe to call at any time and must
// suppress further callbacks.
type ProcessHandle interface {
	Unregister()
	PID() int
}

// Command is one tracked external-command execution.
// Identity and policy fields are immutable after creation; buffers grow
// until the command is finalized.
type Command struct {
	ID          int
	Name        string
	CommandLine string

	Handle   ProcessHandle // set while running, cleared at finalization
	PID      int
	Detached bool

	StartTime time.Time
	EndTime   time.Time // zero until finalized

	Route          RouteMode
	Target         string // display surface full name
	PipeTemplate   string
	EventName      string
	LineNumbers    bool
	ShowReturnCode bool
	Color          color.Policy

	Out Buffer
	Err Buffer

	// ReturnCode is -1 while running and after abnormal termination.
	ReturnCode int

	removed    bool
	prev, next *Command
}

// Running reports whether the command still has a pending process-runner
// registration.
func (c *Command) Running() bool {
	return c.Handle != nil
}

// Finished reports whether the command has been finalized.
func (c *Command) Finished() bool {
	return !c.EndTime.IsZero()
}

// TagName returns the identity used in display tags: the name when set,
// the numeric id otherwise.
func (c *Command) TagName() string {
	if c.Name != "" {
		return c.Name
	}
	return strconv.Itoa(c.ID)
}

// Registry is an ordered collection of command records. Insertion order
// is preserved and ids are unique among live records; a removed record's
// id may be reused by a later Add.
type Registry struct {
	head, tail *Command
	count      int
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		logger: log.WithFields(zap.String("component", "registry")),
	}
}

// Add allocates a new record, assigns the smallest available id and
// appends it to the end of the list. The record starts in the running
// state with the -1 return-code sentinel.
func (r *Registry) Add() *Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Smallest non-negative id with no live record. The list is only
	// insertion-ordered, so once an id has been reused adjacency says
	// nothing about gaps; only the live set does.
	live := make(map[int]bool, r.count)
	for c := r.head; c != nil; c = c.next {
		live[c.ID] = true
	}
	number := 0
	for live[number] {
		number++
	}

	cmd := &Command{
		ID:         number,
		StartTime:  time.Now(),
		ReturnCode: -1,
	}

	cmd.prev = r.tail
	if r.head == nil {
		r.head = cmd
	} else {
		r.tail.next = cmd
	}
	r.tail = cmd
	r.count++

	r.logger.Debug("added command record", zap.Int("command_id", cmd.ID))
	return cmd
}

// Get returns the live record with the given numeric id, or nil.
func (r *Registry) Get(id int) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := r.head; c != nil; c = c.next {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Find looks up a record by a token that is either a numeric id or a
// name. Each record is checked for a number match and then a name match,
// in insertion order; the first record matching on either field wins.
func (r *Registry) Find(token string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	number := -1
	if n, err := strconv.Atoi(token); err == nil && n >= 0 {
		number = n
	}

	for c := r.head; c != nil; c = c.next {
		if number >= 0 && c.ID == number {
			return c
		}
		if c.Name != "" && c.Name == token {
			return c
		}
	}
	return nil
}

// Remove unlinks a record from the list and releases its resources,
// cancelling any pending process-runner registration. Calling it again
// for the same record is a no-op.
func (r *Registry) Remove(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(cmd)
}

func (r *Registry) removeLocked(cmd *Command) {
	if cmd == nil || cmd.removed {
		return
	}
	cmd.removed = true

	if cmd.prev != nil {
		cmd.prev.next = cmd.next
	}
	if cmd.next != nil {
		cmd.next.prev = cmd.prev
	}
	if r.head == cmd {
		r.head = cmd.next
	}
	if r.tail == cmd {
		r.tail = cmd.prev
	}
	cmd.prev = nil
	cmd.next = nil

	// A still-registered handle would otherwise call back into a record
	// that is no longer tracked.
	if cmd.Handle != nil {
		cmd.Handle.Unregister()
		cmd.Handle = nil
	}
	cmd.Out.Release()
	cmd.Err.Release()

	r.count--
	r.logger.Debug("removed command record", zap.Int("command_id", cmd.ID))
}

// RemoveAll removes every record regardless of run state. Used at
// shutdown.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.head != nil {
		r.removeLocked(r.head)
	}
}

// List returns all live records in insertion order.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Command, 0, r.count)
	for c := r.head; c != nil; c = c.next {
		result = append(result, c)
	}
	return result
}

// Count returns the number of live records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
