package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/cockpit/pkg/explain"
	"github.com/Mindburn-Labs/cockpit/pkg/kill"
	"github.com/Mindburn-Labs/cockpit/pkg/writer"
)

const maxChangeBody = 4 << 20

type reqIDKey struct{}

func withReqID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reqIDKey{}, id)
}

func reqID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey{}).(string)
	return id
}

// changeRequest is the /api/change wire shape; the embedded schema is
// the source of truth for its constraints.
type changeRequest struct {
	Path        string               `json:"path"`
	NewContent  string               `json:"new_content"`
	Author      string               `json:"author"`
	Intent      string               `json:"intent"`
	Explanation *explain.Explanation `json:"explanation"`
}

type changeResponse struct {
	Applied      bool   `json:"applied"`
	ReportID     string `json:"report_id,omitempty"`
	NewHash      string `json:"new_hash,omitempty"`
	SnapshotPath string `json:"snapshot_path,omitempty"`

	Step    string `json:"step,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
	Verdict any    `json:"verdict,omitempty"`
}

func (s *server) handleChange(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxChangeBody))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, changeResponse{Error: "read body: " + err.Error()})
		return
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeJSON(rw, http.StatusBadRequest, changeResponse{Error: "invalid json: " + err.Error()})
		return
	}
	if err := changeSchema.Validate(raw); err != nil {
		writeJSON(rw, http.StatusBadRequest, changeResponse{Error: "schema: " + err.Error()})
		return
	}

	var req changeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(rw, http.StatusBadRequest, changeResponse{Error: "invalid json: " + err.Error()})
		return
	}

	res, err := s.writer.ApplyChange(r.Context(), writer.Request{
		Path:        req.Path,
		NewContent:  []byte(req.NewContent),
		Author:      req.Author,
		Intent:      req.Intent,
		Explanation: req.Explanation,
	})
	if err != nil {
		resp := changeResponse{Error: err.Error()}
		status := http.StatusInternalServerError
		var pe *writer.PipelineError
		if errors.As(err, &pe) {
			resp.Step = pe.Step
			resp.Kind = string(pe.Kind)
			if pe.Verdict != nil {
				resp.Verdict = pe.Verdict
			}
			status = statusForKind(pe.Kind)
		}
		s.metrics.RecordChange(r.Context(), time.Since(start), resp.Kind)
		s.logger.Info("change rejected",
			"request_id", reqID(r.Context()), "path", req.Path, "step", resp.Step, "kind", resp.Kind)
		writeJSON(rw, status, resp)
		return
	}

	s.metrics.RecordChange(r.Context(), time.Since(start), "")
	s.logger.Info("change applied",
		"request_id", reqID(r.Context()), "path", req.Path, "report_id", res.ReportID)
	writeJSON(rw, http.StatusOK, changeResponse{
		Applied:      true,
		ReportID:     res.ReportID,
		NewHash:      res.NewHash,
		SnapshotPath: res.SnapshotPath,
	})
}

func statusForKind(kind writer.ErrorKind) int {
	switch kind {
	case writer.KindFatalLiveness:
		return http.StatusServiceUnavailable
	case writer.KindValidation:
		return http.StatusBadRequest
	case writer.KindPolicyBlocked:
		return http.StatusForbidden
	case writer.KindConcurrencyContention:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	status := "ok"
	if kill.IsTripped() {
		status = "killed"
	}
	resp := map[string]any{
		"status": status,
		"oracle": s.oracle.Status(),
	}
	if s.store.Chaining() {
		if n, err := s.store.VerifyChain(); err != nil {
			resp["audit_chain"] = "broken"
			resp["audit_chain_error"] = err.Error()
		} else {
			resp["audit_chain"] = "ok"
			resp["audit_records"] = n
		}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Snapshot(r.Context())
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, snap)
}

func (s *server) handleKillTrip(rw http.ResponseWriter, r *http.Request) {
	if err := kill.Trip(); err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Warn("kill switch tripped", "request_id", reqID(r.Context()))
	writeJSON(rw, http.StatusOK, map[string]string{"status": "killed"})
}

func (s *server) handleKillReset(rw http.ResponseWriter, r *http.Request) {
	if err := kill.Reset(); err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info("kill switch reset", "request_id", reqID(r.Context()))
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
