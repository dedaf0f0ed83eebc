package models

import "time"

// ChatRequest is the body of POST /chatbot and its aliases.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// ChatResponse carries the assistant reply. Message is null when the service
// answered without text.
type ChatResponse struct {
	Message   *string `json:"message"`
	SessionID string  `json:"sessionId"`
}

// PredictResponse is the body of POST /predict.
type PredictResponse struct {
	Answer *string `json:"answer"`
}

// ErrorResponse is every non-2xx body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Session is what the server remembers about one conversation.
type Session struct {
	ID         string    `json:"sessionId"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	Turns      int       `json:"turns"`
	LastIntent string    `json:"lastIntent,omitempty"`
}
