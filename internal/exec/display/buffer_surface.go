package display

import (
	"sync"
	"time"
)

// Line is one rendered line on a buffer surface.
type Line struct {
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
	Message   string    `json:"message"`
}

// Subscriber is a channel that receives surface lines as they are
// printed.
type Subscriber chan Line

// CommandFunc handles command lines re-injected into a surface.
type CommandFunc func(surface, line string)

// BufferSurface is a Surface backed by a ring buffer of lines, with
// real-time streaming to subscribers. Re-injected commands are handed to
// the host-provided CommandFunc.
type BufferSurface struct {
	name  string
	lines []Line
	size  int
	head  int
	count int
	mu    sync.RWMutex

	onCommand CommandFunc

	subscribers map[Subscriber]struct{}
	subMu       sync.RWMutex
}

// NewBufferSurface creates a buffer surface holding up to size lines.
func NewBufferSurface(name string, size int, onCommand CommandFunc) *BufferSurface {
	return &BufferSurface{
		name:        name,
		lines:       make([]Line, size),
		size:        size,
		onCommand:   onCommand,
		subscribers: make(map[Subscriber]struct{}),
	}
}

// FullName implements Surface.
func (s *BufferSurface) FullName() string {
	return s.name
}

// Print appends a tagged line and notifies subscribers.
func (s *BufferSurface) Print(tags []string, message string) {
	line := Line{
		Timestamp: time.Now(),
		Tags:      tags,
		Message:   message,
	}

	s.mu.Lock()
	idx := (s.head + s.count) % s.size
	if s.count < s.size {
		s.count++
	} else {
		s.head = (s.head + 1) % s.size
	}
	s.lines[idx] = line
	s.mu.Unlock()

	// Notify subscribers (non-blocking)
	s.subMu.RLock()
	for sub := range s.subscribers {
		select {
		case sub <- line:
		default:
			// Subscriber is slow, skip
		}
	}
	s.subMu.RUnlock()
}

// Command hands a re-injected command line to the host handler. Without
// a handler the line is shown on the surface instead of being lost.
func (s *BufferSurface) Command(line string) {
	if s.onCommand != nil {
		s.onCommand(s.name, line)
		return
	}
	s.Print([]string{"input"}, line)
}

// GetAll returns all lines in the buffer (oldest first).
func (s *BufferSurface) GetAll() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Line, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head + i) % s.size
		result[i] = s.lines[idx]
	}
	return result
}

// GetLast returns the last n lines from the buffer.
func (s *BufferSurface) GetLast(n int) []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.count {
		n = s.count
	}

	result := make([]Line, n)
	start := s.count - n
	for i := 0; i < n; i++ {
		idx := (s.head + start + i) % s.size
		result[i] = s.lines[idx]
	}
	return result
}

// Subscribe creates a new subscriber that receives lines in real time.
func (s *BufferSurface) Subscribe() Subscriber {
	sub := make(Subscriber, 100)

	s.subMu.Lock()
	s.subscribers[sub] = struct{}{}
	s.subMu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *BufferSurface) Unsubscribe(sub Subscriber) {
	s.subMu.Lock()
	delete(s.subscribers, sub)
	s.subMu.Unlock()
	close(sub)
}

// Count returns the number of lines in the buffer.
func (s *BufferSurface) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Clear clears the buffer.
func (s *BufferSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.count = 0
}
