package lifecycle

import (
	"fmt"
	"os"
	"strings"
	"syscall"
)

var signalsByName = map[string]os.Signal{
	"hup":  syscall.SIGHUP,
	"int":  syscall.SIGINT,
	"quit": syscall.SIGQUIT,
	"kill": syscall.SIGKILL,
	"term": syscall.SIGTERM,
	"usr1": syscall.SIGUSR1,
	"usr2": syscall.SIGUSR2,
}

// ParseSignal maps a signal name ("term", "kill", ...) to a signal. The
// "sig" prefix is accepted and case is ignored.
func ParseSignal(name string) (os.Signal, error) {
	key := strings.TrimPrefix(strings.ToLower(name), "sig")
	if sig, ok := signalsByName[key]; ok {
		return sig, nil
	}
	return nil, fmt.Errorf("unknown signal %q", name)
}
