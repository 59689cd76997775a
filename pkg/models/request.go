package models

import "time"

// RunRequest represents the request payload for triggering a fetch-and-extract run
type RunRequest struct {
	URL     string      `json:"url" validate:"required,url"`
	Options *RunOptions `json:"options,omitempty"`
}

// FileRunRequest represents the request payload for extracting from a local markup dump
type FileRunRequest struct {
	Path string `json:"path" validate:"required"`
}

// RunOptions provides additional configuration for individual runs
type RunOptions struct {
	Engine  string        `json:"engine,omitempty" validate:"omitempty,oneof=auto http browser"`
	Timeout time.Duration `json:"timeout,omitempty"` // Overall run timeout
}
