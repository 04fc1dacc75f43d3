// Package router dispatches a finalized command's accumulated output to
// its destination: tagged lines on a surface, line injection into a
// target surface, or re-injected follow-up commands.
package router

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/execman/execman/internal/common/logger"
	"github.com/execman/execman/internal/exec/color"
	"github.com/execman/execman/internal/exec/display"
	"github.com/execman/execman/internal/exec/registry"
)

// Tags identifying the stream on default tagged display.
const (
	TagStdout = "exec_stdout"
	TagStderr = "exec_stderr"
)

// PipePlaceholder is replaced by the output line in a pipe template.
const PipePlaceholder = "$line"

// Router turns one stream's buffered output into surface writes or
// re-injected commands, one line at a time.
type Router struct {
	decoder  *color.Decoder
	displays *display.Registry
	logger   *logger.Logger
}

// New creates a router.
func New(decoder *color.Decoder, displays *display.Registry, log *logger.Logger) *Router {
	return &Router{
		decoder:  decoder,
		displays: displays,
		logger:   log.WithFields(zap.String("component", "router")),
	}
}

// Route dispatches one stream's accumulated output, passed as the text
// captured from the command's buffer. Empty text is a no-op. Injection
// into a missing target surface is silently dropped; output must never
// land on an unrelated surface.
func (r *Router) Route(cmd *registry.Command, surface display.Surface, stdout bool, raw string) {
	if raw == "" {
		return
	}

	if cmd.Route == registry.RouteTarget && surface == nil {
		return
	}

	injected := cmd.Route == registry.RoutePipe || cmd.Route == registry.RouteTarget
	text, err := r.decoder.Decode(cmd.Color, injected, raw)
	if err != nil {
		r.logger.Debug("color decode failed, output dropped",
			zap.Int("command_id", cmd.ID), zap.Error(err))
		return
	}
	if text == "" {
		return
	}

	// A trailing newline produces a final empty element; it is an
	// artifact, not an empty line.
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	switch cmd.Route {
	case registry.RoutePipe:
		r.pipe(cmd, surface, lines)
	case registry.RouteTarget:
		r.inject(cmd, surface, lines)
	default:
		r.print(cmd, surface, stdout, lines)
	}
}

// pipe re-injects each output line as a new command built from the pipe
// template. One output line, one command.
func (r *Router) pipe(cmd *registry.Command, surface display.Surface, lines []string) {
	if surface == nil {
		surface = r.displays.Core()
	}
	if surface == nil {
		return
	}

	for _, line := range lines {
		var command string
		if strings.Contains(cmd.PipeTemplate, PipePlaceholder) {
			command = strings.Replace(cmd.PipeTemplate, PipePlaceholder, line, 1)
		} else {
			command = cmd.PipeTemplate + " " + line
		}
		surface.Command(command)
	}
}

// inject writes each output line into the target surface as a command
// line, numbered when requested. An empty line becomes a single space so
// it stays visible.
func (r *Router) inject(cmd *registry.Command, surface display.Surface, lines []string) {
	for i, line := range lines {
		if cmd.LineNumbers {
			surface.Command(fmt.Sprintf("%d. %s", i+1, line))
			continue
		}
		if line == "" {
			line = " "
		}
		surface.Command(line)
	}
}

// print produces default tagged display lines on the surface, falling
// back to the core surface when the target did not resolve.
func (r *Router) print(cmd *registry.Command, surface display.Surface, stdout bool, lines []string) {
	if surface == nil {
		surface = r.displays.Core()
	}
	if surface == nil {
		return
	}

	streamTag := TagStderr
	if stdout {
		streamTag = TagStdout
	}
	tags := []string{streamTag, "exec_cmd_" + cmd.TagName()}

	for i, line := range lines {
		prefix := " \t"
		if cmd.LineNumbers {
			prefix = fmt.Sprintf("%d\t", i+1)
		}
		surface.Print(tags, prefix+line)
	}
}
