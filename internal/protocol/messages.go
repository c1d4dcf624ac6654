package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatSubmit      MessageType = "chat_submit"
	TypeClientControl   MessageType = "client_control"
	TypeSessionSnapshot MessageType = "session_snapshot"
	TypeRequestProgress MessageType = "request_progress"
	TypeAssistantTurn   MessageType = "assistant_turn"
	TypeErrorEvent      MessageType = "error_event"
)

// Client control actions.
const (
	ActionRefresh = "refresh"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Turn is the wire form of a conversation turn. HTML is the sanitized
// rendering of Content.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	HTML    string    `json:"html"`
	At      time.Time `json:"at"`
}

type Profile struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Progress struct {
	Percent   int    `json:"percent"`
	Stage     int    `json:"stage"`
	StageText string `json:"stage_text"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Snapshot is the session state returned by every HTTP endpoint and pushed
// over the websocket.
type Snapshot struct {
	SessionID    string    `json:"session_id"`
	Onboarded    bool      `json:"onboarded"`
	Profile      *Profile  `json:"profile,omitempty"`
	Status       string    `json:"status"`
	Turns        []Turn    `json:"turns"`
	Progress     *Progress `json:"progress,omitempty"`
	RetryAfterMS int64     `json:"retry_after_ms,omitempty"`
}

type ChatSubmit struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type SessionSnapshot struct {
	Type     MessageType `json:"type"`
	Snapshot Snapshot    `json:"snapshot"`
}

type RequestProgress struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Progress     Progress    `json:"progress"`
	RetryAfterMS int64       `json:"retry_after_ms"`
}

type AssistantTurn struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Turn      Turn        `json:"turn"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes a client frame into ChatSubmit or ClientControl.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatSubmit:
		var msg ChatSubmit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid chat_submit: missing session_id")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.TrimSpace(msg.Action)
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
