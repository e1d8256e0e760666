package api

import (
	"github.com/gmsas95/moneychat/internal/chat"
	"github.com/gmsas95/moneychat/internal/finance"
)

// ChatRequest is the body of POST /api/chat and of each websocket frame
type ChatRequest struct {
	Message      string            `json:"message"`
	Type         string            `json:"type,omitempty"`
	FileInfo     *finance.FileMeta `json:"fileInfo,omitempty"`
	PreviousFile *finance.FileMeta `json:"previousFile,omitempty"`
}

// ChatEnvelope wraps every chat reply. Error is set only when Success is false.
type ChatEnvelope struct {
	Success bool           `json:"success"`
	Data    *chat.Response `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ErrorResponse is returned with 4xx and 5xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

// LoginResponse carries a signed token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}
