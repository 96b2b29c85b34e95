package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
	"github.com/AltairaLabs/scenebridge-mcp/internal/session"
)

// SSE event names
const (
	EventSession  = "session"
	EventEndpoint = "endpoint"
	EventMessage  = "message"
	EventWarning  = "warning"
)

// DropWarning is the payload of a warning event
type DropWarning struct {
	Type    string `json:"type"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// handleStream serves GET /sse. The session lives as long as the connection
// or until the idle sweep or shutdown closes it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	q := s.sessions.Open()
	defer s.sessions.Close(q.ID())
	log := s.logger.With("session_id", q.ID(), "request_id", RequestID(r.Context()))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(HeaderSessionID, q.ID())
	w.WriteHeader(http.StatusOK)

	hello, _ := json.Marshal(map[string]string{"sessionId": q.ID()})
	endpoint := PathSSEMessages + "?" + querySessionID + "=" + url.QueryEscape(q.ID())
	if err := writeEvent(w, EventSession, hello); err != nil {
		return
	}
	if err := writeEvent(w, EventEndpoint, []byte(endpoint)); err != nil {
		return
	}
	flusher.Flush()

	keepalive := s.cfg.Sessions.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = config.DefaultKeepaliveInterval
	}

	ctx := r.Context()
	for {
		if err := s.flushQueue(w, q); err != nil {
			log.Debug("Stream write failed", "error", err)
			return
		}
		flusher.Flush()

		active := q.Wait(ctx, keepalive)
		select {
		case <-ctx.Done():
			return
		case <-q.Closed():
			log.Debug("Session closed by server")
			return
		default:
		}
		if !active {
			if _, err := fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// flushQueue writes a pending drop warning and then every buffered message
func (s *Server) flushQueue(w io.Writer, q *session.Queue) error {
	if notice, ok := q.TakeDropNotice(); ok {
		data, _ := json.Marshal(DropWarning{
			Type:    "messages_dropped",
			Count:   notice.Count,
			Message: fmt.Sprintf(config.MsgMessagesDropped, notice.Count),
		})
		if err := writeEvent(w, EventWarning, data); err != nil {
			return err
		}
	}
	for _, msg := range q.Drain() {
		event := msg.Event
		if event == "" {
			event = EventMessage
		}
		if err := writeEvent(w, event, msg.Data); err != nil {
			return err
		}
	}
	return nil
}

func writeEvent(w io.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// handleSideChannel serves POST /sse and /sse/messages. A request naming an
// open session is acknowledged with 202 and answered on the stream; anything
// else is answered synchronously.
func (s *Server) handleSideChannel(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	id := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if id == "" {
		id = r.URL.Query().Get(querySessionID)
	}
	q, known := s.sessions.Get(id)
	if id == "" || !known {
		s.respondSync(w, r, body)
		return
	}

	req, rpcErr := protocol.Decode(body)
	if rpcErr != nil {
		status := http.StatusOK
		if rpcErr.Code == protocol.CodeParseError {
			status = http.StatusBadRequest
		}
		writeRPCError(w, status, nil, rpcErr)
		return
	}

	q.Touch()
	requestID := RequestID(r.Context())
	started := s.tasks.Go(func(ctx context.Context) {
		resp := s.dispatcher.Handle(ctx, req)
		if resp == nil {
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("Failed to encode response", "session_id", id, "error", err)
			return
		}
		if !s.sessions.Push(id, session.Message{Event: EventMessage, Data: data}) {
			s.logger.Debug("Session gone before response was queued", "session_id", id, "request_id", requestID)
		}
	})
	if !started {
		writeRPCError(w, http.StatusServiceUnavailable, req.ID,
			protocol.NewError(protocol.CodeServerShuttingDown, config.MsgShuttingDown))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
