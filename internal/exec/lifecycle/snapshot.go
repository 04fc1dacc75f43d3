package lifecycle

import (
	"time"

	"github.com/execman/execman/internal/exec/registry"
)

// Snapshot is a point-in-time copy of a command record, safe to hand
// out without holding the manager lock.
type Snapshot struct {
	ID          int
	Name        string
	CommandLine string
	PID         int
	Detached    bool
	Running     bool
	StartTime   time.Time
	EndTime     time.Time
	ReturnCode  int

	Route          string
	Target         string
	Pipe           string
	Event          string
	LineNumbers    bool
	ShowReturnCode bool
	Color          string

	StdoutBytes int
	StderrBytes int
}

func snapshot(cmd *registry.Command) *Snapshot {
	return &Snapshot{
		ID:             cmd.ID,
		Name:           cmd.Name,
		CommandLine:    cmd.CommandLine,
		PID:            cmd.PID,
		Detached:       cmd.Detached,
		Running:        cmd.Running(),
		StartTime:      cmd.StartTime,
		EndTime:        cmd.EndTime,
		ReturnCode:     cmd.ReturnCode,
		Route:          cmd.Route.String(),
		Target:         cmd.Target,
		Pipe:           cmd.PipeTemplate,
		Event:          cmd.EventName,
		LineNumbers:    cmd.LineNumbers,
		ShowReturnCode: cmd.ShowReturnCode,
		Color:          cmd.Color.String(),
		StdoutBytes:    cmd.Out.Len(),
		StderrBytes:    cmd.Err.Len(),
	}
}

// Inspect returns a copy of the record matching the token, by numeric
// id or name.
func (m *Manager) Inspect(token string) (*Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := m.reg.Find(token)
	if cmd == nil {
		return nil, false
	}
	return snapshot(cmd), true
}

// InspectAll returns copies of every live record in insertion order.
func (m *Manager) InspectAll() []*Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmds := m.reg.List()
	result := make([]*Snapshot, len(cmds))
	for i, cmd := range cmds {
		result[i] = snapshot(cmd)
	}
	return result
}
