// Package api provides HTTP handlers for the execman command API.
package api

import "time"

// RunCommandRequest for spawning a command
type RunCommandRequest struct {
	Command  string   `json:"command" binding:"required"`
	Name     string   `json:"name,omitempty"`
	Shell    *bool    `json:"shell,omitempty"` // default true
	Detached bool     `json:"detached,omitempty"`
	Stdin    string   `json:"stdin,omitempty"`
	Dir      string   `json:"dir,omitempty"`
	Env      []string `json:"env,omitempty"`

	Target         string `json:"target,omitempty"`
	ToTarget       bool   `json:"to_target,omitempty"`
	Pipe           string `json:"pipe,omitempty"`
	Event          string `json:"event,omitempty"`
	LineNumbers    bool   `json:"line_numbers,omitempty"`
	ShowReturnCode bool   `json:"show_return_code,omitempty"`
	Color          string `json:"color,omitempty"` // ansi, decode or strip
}

// SignalRequest for sending a signal to a running command
type SignalRequest struct {
	Signal string `json:"signal" binding:"required"` // hup, int, quit, kill, term, usr1, usr2
}

// InputRequest for writing to a running command's stdin
type InputRequest struct {
	Data  string `json:"data"`
	Close bool   `json:"close,omitempty"`
}

// Response types

// CommandResponse represents a command record in API responses
type CommandResponse struct {
	ID          int        `json:"id"`
	Name        string     `json:"name,omitempty"`
	Command     string     `json:"command"`
	PID         int        `json:"pid,omitempty"`
	Detached    bool       `json:"detached"`
	Running     bool       `json:"running"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	ReturnCode  int        `json:"return_code"`
	Route       string     `json:"route"`
	Target      string     `json:"target,omitempty"`
	Pipe        string     `json:"pipe,omitempty"`
	Event       string     `json:"event,omitempty"`
	Color       string     `json:"color"`
	StdoutBytes int        `json:"stdout_bytes"`
	StderrBytes int        `json:"stderr_bytes"`
}

// CommandsListResponse for listing commands
type CommandsListResponse struct {
	Commands []*CommandResponse `json:"commands"`
	Total    int                `json:"total"`
}

// RemovedResponse reports how many records a bulk delete removed
type RemovedResponse struct {
	Removed int `json:"removed"`
}

// SurfaceResponse represents a display surface in API responses
type SurfaceResponse struct {
	Name  string `json:"name"`
	Lines int    `json:"lines"`
}

// SurfacesListResponse for listing surfaces
type SurfacesListResponse struct {
	Surfaces []*SurfaceResponse `json:"surfaces"`
	Total    int                `json:"total"`
}
