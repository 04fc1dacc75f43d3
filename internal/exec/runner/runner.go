// Package runner spawns external processes and streams their output
// back through asynchronous callbacks. For one handle, callbacks are
// delivered serially in arrival order and the terminal callback is
// always last.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/execman/execman/internal/common/logger"
)

// Return-code sentinels carried by callbacks. Real exit codes are
// always zero or positive.
const (
	// CodeRunning marks a partial-output callback.
	CodeRunning = -1
	// CodeError marks a terminal callback for a process that could not
	// be run or whose exit status could not be read.
	CodeError = -2
)

// Callback receives output chunks and, exactly once per handle, a
// terminal code. A terminal callback never carries chunks; chunks are
// always delivered first.
type Callback func(code int, stdout, stderr []byte)

// Options control how a command line is spawned.
type Options struct {
	// UseShell wraps the command line in `shell -c`.
	UseShell bool
	// Detached drops the output streams entirely and leaves the child
	// running when the handle is unregistered or the host shuts down.
	Detached bool
	// Stdin keeps a pipe to the child's standard input open for writes.
	Stdin bool
	Dir   string
	Env   []string
}

const chunkSize = 4096

// Runner spawns processes. It holds only configuration; every spawned
// process is owned by its Handle.
type Runner struct {
	shell  string
	logger *logger.Logger
}

// New creates a runner using the given shell for UseShell spawns.
func New(shell string, log *logger.Logger) *Runner {
	return &Runner{
		shell:  shell,
		logger: log.WithFields(zap.String("component", "runner")),
	}
}

// Spawn starts the command line and returns immediately. Output and
// completion arrive through cb on a dedicated goroutine. A start
// failure is returned synchronously and produces no callbacks.
func (r *Runner) Spawn(ctx context.Context, commandLine string, opts Options, cb Callback) (*Handle, error) {
	var name string
	var args []string
	if opts.UseShell {
		name = r.shell
		args = []string{"-c", commandLine}
	} else {
		split, err := splitCommandLine(commandLine)
		if err != nil {
			return nil, err
		}
		name = split[0]
		args = split[1:]
	}

	// A detached child must outlive the host, so it is not bound to the
	// host's context.
	var cmd *exec.Cmd
	if opts.Detached {
		cmd = exec.Command(name, args...)
	} else {
		cmd = exec.CommandContext(ctx, name, args...)
	}
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	// Every child gets its own process group: the shell may fork, and
	// signals and the removal-time kill must reach the grandchildren too
	// or they keep the output pipes open past the shell's death.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h := &Handle{
		cmd:      cmd,
		cb:       cb,
		detached: opts.Detached,
		events:   make(chan event, 16),
		logger:   r.logger,
	}

	var outPipe, errPipe io.ReadCloser
	if !opts.Detached {
		var err error
		outPipe, err = cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		errPipe, err = cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
	}
	if opts.Stdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		h.stdin = stdin
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", commandLine, err)
	}
	h.pid = cmd.Process.Pid

	r.logger.Debug("spawned process",
		zap.Int("pid", h.pid),
		zap.Bool("shell", opts.UseShell),
		zap.Bool("detached", opts.Detached))

	var pumps sync.WaitGroup
	if outPipe != nil {
		pumps.Add(2)
		go h.readPump(outPipe, true, &pumps)
		go h.readPump(errPipe, false, &pumps)
	}
	go h.wait(&pumps)
	go h.dispatch()

	return h, nil
}

type event struct {
	code   int
	stdout []byte
	stderr []byte
}

// Handle is one spawned process. It satisfies the registry's process
// handle contract: Unregister is safe at any time and suppresses all
// further callbacks.
type Handle struct {
	cmd      *exec.Cmd
	pid      int
	stdin    io.WriteCloser
	cb       Callback
	detached bool
	events   chan event
	logger   *logger.Logger

	mu           sync.Mutex
	unregistered bool
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	return h.pid
}

// Unregister suppresses all further callbacks and kills the child's
// process group if it is still alive. A detached child is left running.
// Safe to call more than once.
func (h *Handle) Unregister() {
	h.mu.Lock()
	if h.unregistered {
		h.mu.Unlock()
		return
	}
	h.unregistered = true
	h.mu.Unlock()

	if h.stdin != nil {
		h.stdin.Close()
	}
	if !h.detached && h.cmd.Process != nil {
		if err := syscall.Kill(-h.pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			h.logger.Debug("kill on unregister", zap.Int("pid", h.pid), zap.Error(err))
		}
	}
}

// Signal sends a signal to the child's process group, so it reaches
// descendants the shell may have forked.
func (h *Handle) Signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if s, ok := sig.(syscall.Signal); ok {
		return syscall.Kill(-h.pid, s)
	}
	return h.cmd.Process.Signal(sig)
}

// SendInput writes data to the child's standard input. The handle must
// have been spawned with Options.Stdin.
func (h *Handle) SendInput(data []byte) error {
	if h.stdin == nil {
		return fmt.Errorf("stdin not open for pid %d", h.pid)
	}
	_, err := h.stdin.Write(data)
	return err
}

// CloseStdin closes the child's standard input, signalling end of input.
func (h *Handle) CloseStdin() error {
	if h.stdin == nil {
		return fmt.Errorf("stdin not open for pid %d", h.pid)
	}
	return h.stdin.Close()
}

func (h *Handle) readPump(pipe io.ReadCloser, stdout bool, pumps *sync.WaitGroup) {
	defer pumps.Done()

	buf := make([]byte, chunkSize)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ev := event{code: CodeRunning}
			if stdout {
				ev.stdout = chunk
			} else {
				ev.stderr = chunk
			}
			h.events <- ev
		}
		if err != nil {
			return
		}
	}
}

// wait blocks until both pumps drained their pipes and the child
// exited, then queues the terminal event and closes the stream.
func (h *Handle) wait(pumps *sync.WaitGroup) {
	pumps.Wait()

	code := CodeError
	err := h.cmd.Wait()
	switch e := err.(type) {
	case nil:
		code = 0
	case *exec.ExitError:
		if c := e.ExitCode(); c >= 0 {
			code = c
		}
	default:
		h.logger.Debug("wait failed", zap.Int("pid", h.pid), zap.Error(err))
	}

	h.events <- event{code: code}
	close(h.events)
}

// dispatch delivers queued events to the callback one at a time,
// dropping everything once the handle is unregistered.
func (h *Handle) dispatch() {
	for ev := range h.events {
		h.mu.Lock()
		dead := h.unregistered
		h.mu.Unlock()
		if dead {
			continue
		}
		h.cb(ev.code, ev.stdout, ev.stderr)
	}
}
