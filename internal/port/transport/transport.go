// Package transport defines the send-only capability the server uses to
// reach a connected worker, plus the server-to-worker message schemas.
// The WebSocket adapter provides the concrete implementation.
package transport

import "context"

// Sender pushes one text frame to a worker. A send may fail at any time
// (closed socket); callers must treat failures as recoverable.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// Message type constants for server-to-worker frames.
const (
	TypeRegisterSuccess = "register_success"
	TypeTask            = "task"
)

// RegisterSuccess acknowledges a worker registration.
type RegisterSuccess struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

// TaskMessage hands a generation task to a worker. Reference images are
// inline base64 payloads; path resolution happens before the send.
type TaskMessage struct {
	Type            string   `json:"type"`
	TaskID          string   `json:"task_id"`
	Prompt          string   `json:"prompt"`
	TaskType        string   `json:"task_type"`
	AspectRatio     string   `json:"aspect_ratio"`
	Resolution      string   `json:"resolution"`
	ReferenceImages []string `json:"reference_images"`
}
