package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageChatSubmit(t *testing.T) {
	raw := []byte(`{"type":"chat_submit","session_id":"s1","message":"What are your hours?"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	submit, ok := msg.(ChatSubmit)
	if !ok {
		t.Fatalf("message type = %T, want ChatSubmit", msg)
	}
	if submit.SessionID != "s1" || submit.Message != "What are your hours?" {
		t.Fatalf("unexpected chat submit: %+v", submit)
	}
}

func TestParseClientMessageKeepsEmptySubmit(t *testing.T) {
	// Empty text is rejected by the controller, not the codec.
	msg, err := ParseClientMessage([]byte(`{"type":"chat_submit","session_id":"s1","message":""}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.(ChatSubmit).Message != "" {
		t.Fatalf("Message = %q, want empty", msg.(ChatSubmit).Message)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":"s1","action":" refresh "}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionRefresh {
		t.Fatalf("Action = %q, want %q", control.Action, ActionRefresh)
	}
}

func TestParseClientMessageRejects(t *testing.T) {
	cases := map[string]string{
		"missing session": `{"type":"chat_submit","message":"hi"}`,
		"missing action":  `{"type":"client_control","session_id":"s1"}`,
		"not json":        `{"type":`,
	}
	for name, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("%s: ParseClientMessage() error = nil, want error", name)
		}
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"assistant_turn"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestSnapshotOmitsProgressWhenIdle(t *testing.T) {
	raw, err := json.Marshal(SessionSnapshot{
		Type:     TypeSessionSnapshot,
		Snapshot: Snapshot{SessionID: "s1", Status: "idle", Turns: []Turn{}},
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded struct {
		Snapshot map[string]any `json:"snapshot"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	snap := decoded.Snapshot
	if _, ok := snap["progress"]; ok {
		t.Fatalf("idle snapshot carries progress: %s", raw)
	}
	if _, ok := snap["retry_after_ms"]; ok {
		t.Fatalf("idle snapshot carries retry_after_ms: %s", raw)
	}
}
