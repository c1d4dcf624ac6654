package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/concierge/internal/chat"
	"github.com/ent0n29/concierge/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleSessionWS pushes session state as it changes: a snapshot on connect
// and after every change, progress frames while a request is pending, and
// the assistant turn when it lands. Clients may submit messages on the same
// socket.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected", s.sessions.ActiveCount())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Unblocks ReadMessage when the writer or watcher gives up first.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	outbound := make(chan any, 64)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					cancel()
					return
				}
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		s.watchSession(ctx, sess, outbound)
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.offer(outbound, errorEvent(sess.ID, "invalid_client_message", "gateway", false, err.Error()))
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		s.handleClientMessage(ctx, sess, parsed, outbound)
	}

	cancel()
	<-watcherDone
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected", s.sessions.ActiveCount())
}

func (s *Server) handleClientMessage(ctx context.Context, sess *chat.Session, msg any, outbound chan<- any) {
	switch m := msg.(type) {
	case protocol.ChatSubmit:
		if m.SessionID != sess.ID {
			s.offer(outbound, errorEvent(sess.ID, "session_mismatch", "gateway", false, "session_id does not match the connection"))
			return
		}
		_ = s.sessions.Touch(sess.ID)
		// The watcher sees the state change and starts streaming progress.
		if err := s.controller.Submit(ctx, sess, m.Message); err != nil {
			_, code := submitErrorStatus(err)
			retryable := errors.Is(err, chat.ErrRequestPending)
			s.offer(outbound, errorEvent(sess.ID, code, "chat", retryable, err.Error()))
		}
	case protocol.ClientControl:
		if m.Action != protocol.ActionRefresh {
			s.offer(outbound, errorEvent(sess.ID, "unsupported_action", "gateway", false, m.Action))
			return
		}
		s.offer(outbound, protocol.SessionSnapshot{
			Type:     protocol.TypeSessionSnapshot,
			Snapshot: s.wireSnapshot(s.controller.Poll(ctx, sess)),
		})
	}
}

// watchSession runs until ctx ends. Pending requests are followed with
// controller.Wait; idle sessions block on the change channel.
func (s *Server) watchSession(ctx context.Context, sess *chat.Session, outbound chan<- any) {
	for {
		changed := sess.Changed()
		snap := s.controller.Poll(ctx, sess)
		if !s.send(ctx, outbound, protocol.SessionSnapshot{Type: protocol.TypeSessionSnapshot, Snapshot: s.wireSnapshot(snap)}) {
			return
		}

		if snap.Status == chat.StatusPending {
			seen := len(snap.Turns)
			final, err := s.controller.Wait(ctx, sess, func(p chat.Snapshot) {
				if p.Progress == nil {
					return
				}
				s.send(ctx, outbound, protocol.RequestProgress{
					Type:         protocol.TypeRequestProgress,
					SessionID:    sess.ID,
					Progress:     wireProgress(*p.Progress),
					RetryAfterMS: p.RetryAfterMS,
				})
			})
			if err != nil {
				return
			}
			for _, t := range final.Turns[min(seen, len(final.Turns)):] {
				if t.Role != chat.RoleAssistant {
					continue
				}
				if !s.send(ctx, outbound, protocol.AssistantTurn{
					Type:      protocol.TypeAssistantTurn,
					SessionID: sess.ID,
					Turn:      s.wireTurn(t),
				}) {
					return
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func (s *Server) send(ctx context.Context, outbound chan<- any, msg any) bool {
	select {
	case <-ctx.Done():
		return false
	case outbound <- msg:
		return true
	}
}

// offer drops msg when the outbound queue is full so the read loop never
// blocks on a slow writer.
func (s *Server) offer(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		slog.Warn("websocket outbound queue full, dropping message")
	}
}

func errorEvent(sessionID, code, source string, retryable bool, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
}
