// Package httpadapter exposes the pipeline surface over JSON. Every route
// carries an explicit tenant id; no ambient tenant state exists anywhere.
package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pitchlabs/pitchscore/internal/adapters/export/excel"
	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
)

type Router struct {
	sessions ports.SessionLifecycle
	scorer   ports.SessionScorer
	ranker   ports.TenantRanker
	indexer  ports.ContextIndexer
	blob     blobGateway
	metrics  httpMetrics
	service  string

	signedURLTTL time.Duration
}

type blobGateway interface {
	Sign(handle string, ttl time.Duration) (string, error)
	Verify(handle string, expires int64, sig string) bool
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
}

type httpMetrics interface {
	Middleware(service string, next http.Handler) http.Handler
	Handler() http.Handler
}

func NewRouter(
	service string,
	sessions ports.SessionLifecycle,
	scorer ports.SessionScorer,
	ranker ports.TenantRanker,
	indexer ports.ContextIndexer,
	blob blobGateway,
	metrics httpMetrics,
	signedURLTTL time.Duration,
) *Router {
	if signedURLTTL <= 0 {
		signedURLTTL = 15 * time.Minute
	}
	return &Router{
		service:      service,
		sessions:     sessions,
		scorer:       scorer,
		ranker:       ranker,
		indexer:      indexer,
		blob:         blob,
		metrics:      metrics,
		signedURLTTL: signedURLTTL,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/tenants/{tenant}/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/tenants/{tenant}/sessions/{id}", rt.getSession)
	mux.HandleFunc("POST /v1/tenants/{tenant}/sessions/{id}/record", rt.beginRecording)
	mux.HandleFunc("POST /v1/tenants/{tenant}/sessions/{id}/segments", rt.ingestSegment)
	mux.HandleFunc("POST /v1/tenants/{tenant}/sessions/{id}/complete", rt.completeSession)
	mux.HandleFunc("POST /v1/tenants/{tenant}/sessions/{id}/score", rt.scoreSession)
	mux.HandleFunc("GET /v1/tenants/{tenant}/sessions/{id}/audio-url", rt.audioURL)
	mux.HandleFunc("GET /v1/tenants/{tenant}/leaderboard", rt.leaderboard)
	mux.HandleFunc("GET /v1/tenants/{tenant}/leaderboard/export", rt.leaderboardExport)
	mux.HandleFunc("POST /v1/tenants/{tenant}/documents", rt.indexDocument)
	mux.HandleFunc("GET /audio/{handle}", rt.downloadAudio)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamName string `json:"team_name"`
		Title    string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "reason": "invalid json"})
		return
	}

	session, err := rt.sessions.CreateSession(r.Context(), r.PathValue("tenant"), req.TeamName, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.sessions.GetSession(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) beginRecording(w http.ResponseWriter, r *http.Request) {
	session, err := rt.sessions.BeginRecording(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) ingestSegment(w http.ResponseWriter, r *http.Request) {
	var seg domain.TranscriptSegment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "reason": "invalid json"})
		return
	}
	if err := rt.sessions.IngestSegment(r.Context(), r.PathValue("tenant"), r.PathValue("id"), seg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (rt *Router) completeSession(w http.ResponseWriter, r *http.Request) {
	var audio io.Reader
	if r.ContentLength != 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/octet-stream") {
		audio = r.Body
	}
	session, err := rt.sessions.CompleteSession(r.Context(), r.PathValue("tenant"), r.PathValue("id"), audio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) scoreSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JudgeID string `json:"judge_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "reason": "invalid json"})
			return
		}
	}
	record, err := rt.scorer.ScoreSession(r.Context(), r.PathValue("tenant"), r.PathValue("id"), req.JudgeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) audioURL(w http.ResponseWriter, r *http.Request) {
	session, err := rt.sessions.GetSession(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if session.AudioRef == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "session has no audio"})
		return
	}
	ttl := rt.signedURLTTL
	if raw := r.URL.Query().Get("ttl_seconds"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}
	signed, err := rt.blob.Sign(session.AudioRef, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": signed})
}

func (rt *Router) downloadAudio(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil || !rt.blob.Verify(handle, expires, r.URL.Query().Get("sig")) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden", "reason": "invalid or expired signature"})
		return
	}
	rc, err := rt.blob.Open(r.Context(), handle)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (rt *Router) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.ranker.Rank(r.Context(), r.PathValue("tenant"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (rt *Router) leaderboardExport(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	entries, err := rt.ranker.Rank(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	buf, err := excel.Leaderboard(tenantID, entries)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="leaderboard-`+tenantID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) indexDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentType string            `json:"document_type"`
		Text         string            `json:"text"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "reason": "invalid json"})
		return
	}
	docType := domain.DocumentType(req.DocumentType)
	switch docType {
	case domain.DocTypeRubric, domain.DocTypeTranscript, domain.DocTypeTeamProfile:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "reason": "unknown document_type"})
		return
	}

	ids, err := rt.indexer.IndexDocument(r.Context(), r.PathValue("tenant"), docType, req.Text, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document_ids": ids})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
