package lifecycle

import (
	"syscall"
	"testing"
)

func TestParseSignal(t *testing.T) {
	cases := []struct {
		in   string
		want syscall.Signal
		ok   bool
	}{
		{"term", syscall.SIGTERM, true},
		{"KILL", syscall.SIGKILL, true},
		{"sigint", syscall.SIGINT, true},
		{"SIGHUP", syscall.SIGHUP, true},
		{"usr1", syscall.SIGUSR1, true},
		{"frob", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		got, err := ParseSignal(tc.in)
		if tc.ok {
			if err != nil {
				t.Errorf("ParseSignal(%q): unexpected error %v", tc.in, err)
				continue
			}
			if got != tc.want {
				t.Errorf("ParseSignal(%q) = %v, want %v", tc.in, got, tc.want)
			}
		} else if err == nil {
			t.Errorf("ParseSignal(%q): expected error", tc.in)
		}
	}
}
