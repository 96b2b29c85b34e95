package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
)

// handleRPC serves POST /http: one request in, one response out, or 204 for
// a notification
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	s.respondSync(w, r, body)
}

func (s *Server) respondSync(w http.ResponseWriter, r *http.Request, body []byte) {
	req, rpcErr := protocol.Decode(body)
	if rpcErr != nil {
		status := http.StatusOK
		if rpcErr.Code == protocol.CodeParseError {
			status = http.StatusBadRequest
		}
		writeRPCError(w, status, nil, rpcErr)
		return
	}

	resp := s.dispatcher.Handle(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readBody reads at most MaxBodyBytes. On failure it has already replied.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := s.cfg.Server.MaxBodyBytes
	if limit <= 0 {
		limit = config.DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeRPCError(w, http.StatusRequestEntityTooLarge, nil,
				protocol.InvalidRequest(fmt.Sprintf("Invalid Request: body exceeds %d bytes", limit)))
			return nil, false
		}
		writeRPCError(w, http.StatusBadRequest, nil, protocol.ParseError(err.Error()))
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeRPCError(w, http.StatusBadRequest, nil, protocol.ParseError("empty body"))
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *protocol.Error) {
	writeJSON(w, status, protocol.NewErrorResponse(id, rpcErr))
}
