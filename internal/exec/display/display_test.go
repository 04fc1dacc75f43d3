package display

import (
	"testing"
)

func TestRegistry_FindExactMatch(t *testing.T) {
	core := NewBufferSurface("core", 10, nil)
	r := NewRegistry(core)

	chat := NewBufferSurface("chat", 10, nil)
	r.Register(chat)

	if got := r.Find("chat"); got != chat {
		t.Error("expected exact-match lookup to return the surface")
	}
	if got := r.Find("cha"); got != nil {
		t.Error("expected prefix lookup to fail")
	}
	if got := r.Find(""); got != nil {
		t.Error("expected empty name to resolve to nothing")
	}
}

func TestRegistry_CoreCannotBeUnregistered(t *testing.T) {
	core := NewBufferSurface("core", 10, nil)
	r := NewRegistry(core)

	r.Unregister("core")

	if r.Find("core") == nil {
		t.Error("expected core surface to survive unregister")
	}
	if r.Core() == nil {
		t.Error("expected Core() to stay set")
	}
}

func TestRegistry_ListSortedByName(t *testing.T) {
	r := NewRegistry(NewBufferSurface("core", 10, nil))
	r.Register(NewBufferSurface("zeta", 10, nil))
	r.Register(NewBufferSurface("alpha", 10, nil))

	names := []string{}
	for _, s := range r.List() {
		names = append(names, s.FullName())
	}
	want := []string{"alpha", "core", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestBufferSurface_RingEviction(t *testing.T) {
	s := NewBufferSurface("test", 3, nil)

	s.Print(nil, "one")
	s.Print(nil, "two")
	s.Print(nil, "three")
	s.Print(nil, "four")

	lines := s.GetAll()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0].Message != "two" || lines[2].Message != "four" {
		t.Errorf("expected oldest line evicted, got %q..%q", lines[0].Message, lines[2].Message)
	}
	if s.Count() != 3 {
		t.Errorf("expected count 3, got %d", s.Count())
	}
}

func TestBufferSurface_GetLast(t *testing.T) {
	s := NewBufferSurface("test", 10, nil)
	for _, msg := range []string{"a", "b", "c"} {
		s.Print(nil, msg)
	}

	last := s.GetLast(2)
	if len(last) != 2 || last[0].Message != "b" || last[1].Message != "c" {
		t.Errorf("unexpected last lines %+v", last)
	}

	all := s.GetLast(100)
	if len(all) != 3 {
		t.Errorf("expected clamp to available lines, got %d", len(all))
	}
}

func TestBufferSurface_SubscriberReceivesLines(t *testing.T) {
	s := NewBufferSurface("test", 10, nil)
	sub := s.Subscribe()

	s.Print([]string{"exec_stdout"}, "hello")

	select {
	case line := <-sub:
		if line.Message != "hello" || line.Tags[0] != "exec_stdout" {
			t.Errorf("unexpected line %+v", line)
		}
	default:
		t.Fatal("expected buffered line on subscriber channel")
	}

	s.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Error("expected channel closed after unsubscribe")
	}
}

func TestBufferSurface_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewBufferSurface("test", 10, nil)
	sub := s.Subscribe()
	defer s.Unsubscribe(sub)

	// Overflow the subscriber channel; Print must not block.
	for i := 0; i < 200; i++ {
		s.Print(nil, "spam")
	}

	if s.Count() != 10 {
		t.Errorf("expected full ring, got %d", s.Count())
	}
}

func TestBufferSurface_CommandDelegatesToHandler(t *testing.T) {
	var gotSurface, gotLine string
	s := NewBufferSurface("chat", 10, func(surface, line string) {
		gotSurface, gotLine = surface, line
	})

	s.Command("say hi")

	if gotSurface != "chat" || gotLine != "say hi" {
		t.Errorf("expected handler call, got %q %q", gotSurface, gotLine)
	}
	if s.Count() != 0 {
		t.Error("expected handled command not to be printed")
	}
}

func TestBufferSurface_CommandWithoutHandlerPrints(t *testing.T) {
	s := NewBufferSurface("chat", 10, nil)

	s.Command("say hi")

	lines := s.GetAll()
	if len(lines) != 1 || lines[0].Message != "say hi" {
		t.Errorf("expected command shown on surface, got %+v", lines)
	}
}

func TestBufferSurface_Clear(t *testing.T) {
	s := NewBufferSurface("test", 10, nil)
	s.Print(nil, "x")
	s.Clear()

	if s.Count() != 0 || len(s.GetAll()) != 0 {
		t.Error("expected cleared surface")
	}
}
