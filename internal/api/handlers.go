package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-kasa/internal/audit"
	"github.com/nerrad567/gray-logic-kasa/internal/command"
	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
)

// statusAccepted is the status field of a queued submission.
const statusAccepted = "accepted"

// AcceptedResponse is returned with 202 when a job is queued.
type AcceptedResponse struct {
	RequestID int64  `json:"request_id"`
	Channel   string `json:"channel"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

// handleSubmitRequest queues a generic request body.
func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req command.Request
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.submit(w, r, req)
}

// handleAction returns a handler for one of the convenience routes. The
// body holds request_id and channel plus the action's parameters at top
// level, e.g. {"request_id": 1, "channel": "panel", "on": true}.
func (s *Server) handleAction(action dispatch.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeSubmission(r)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		req.Action = action

		if raw := chi.URLParam(r, "address"); raw != "" {
			addr, err := url.PathUnescape(raw)
			if err != nil {
				writeBadRequest(w, "invalid device address")
				return
			}
			req.Address = addr
		}

		if raw := chi.URLParam(r, "index"); raw != "" {
			index, err := strconv.Atoi(raw)
			if err != nil {
				writeBadRequest(w, "invalid child index")
				return
			}
			req.Parameters[command.ParamChild] = index
		}

		s.submit(w, r, req)
	}
}

// decodeSubmission reads a convenience-route body. An empty body yields a
// request with no correlation token, which validation then rejects.
func decodeSubmission(r *http.Request) (command.Request, error) {
	fields := make(map[string]any)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		return command.Request{}, fmt.Errorf("invalid JSON body")
	}
	// A literal null decodes to a nil map.
	if fields == nil {
		fields = make(map[string]any)
	}

	req := command.Request{Parameters: fields}

	if raw, ok := fields["request_id"]; ok {
		n, ok := raw.(json.Number)
		if !ok {
			return command.Request{}, fmt.Errorf("request_id must be an integer")
		}
		id, err := n.Int64()
		if err != nil {
			return command.Request{}, fmt.Errorf("request_id must be an integer")
		}
		req.RequestID = id
		delete(fields, "request_id")
	}

	if raw, ok := fields["channel"]; ok {
		ch, ok := raw.(string)
		if !ok {
			return command.Request{}, fmt.Errorf("channel must be a string")
		}
		req.Channel = ch
		delete(fields, "channel")
	}

	return req, nil
}

// submit validates and queues req, writing 202, 400 or 503.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, req command.Request) {
	jobID, err := command.Submit(s.dispatcher, req)
	switch {
	case err == nil:
	case command.IsValidationError(err):
		writeValidationError(w, err.Error())
		return
	case errors.Is(err, dispatch.ErrStopped):
		writeUnavailable(w, "dispatcher is stopped")
		return
	default:
		s.logger.Error("queueing request failed", "action", req.Action, "error", err)
		writeInternalError(w, "failed to queue request")
		return
	}

	s.logger.Debug("request queued",
		"job_id", jobID,
		"action", req.Action,
		"address", req.Address,
		"channel", req.Channel,
		"subject", subjectFrom(r.Context()),
	)

	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		RequestID: req.RequestID,
		Channel:   req.Channel,
		JobID:     jobID,
		Status:    statusAccepted,
	})
}

// handleListDevices returns every known device snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snaps := s.registry.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": snaps,
		"count":   len(snaps),
	})
}

// handleGetDevice returns one device snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	snap, err := s.registry.Snapshot(addr)
	if err != nil {
		if errors.Is(err, device.ErrUnknownDevice) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to read device")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleDeviceHistory returns recorded snapshots for a device, newest first.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "snapshot history is not configured")
		return
	}

	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), addr, limit)
	if err != nil {
		s.logger.Error("reading snapshot history failed", "address", addr, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if entries == nil {
		entries = []device.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"entries": entries,
		"count":   len(entries),
	})
}

// handleListJobs returns the job log, filtered by query parameters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeUnavailable(w, "job log is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Address: q.Get("address"),
		Channel: q.Get("channel"),
		Status:  q.Get("status"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing job log failed", "error", err)
		writeInternalError(w, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// addressParam reads the {address} URL parameter, writing 400 on failure.
func addressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr, err := url.PathUnescape(chi.URLParam(r, "address"))
	if err != nil || addr == "" {
		writeBadRequest(w, "invalid device address")
		return "", false
	}
	return addr, true
}

// queryInt parses an optional non-negative integer query parameter.
// Absent parameters read as zero.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
