package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/roadquality/internal/chart"
	"github.com/banshee-data/roadquality/internal/db"
	"github.com/banshee-data/roadquality/internal/httputil"
	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/roadquality"
	"github.com/banshee-data/roadquality/internal/serialmux"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultEventLimit = 100
	defaultScoreLimit = 500
	maxLimit          = 5000
)

// LiveResults is the in-memory view of the analysis worker.
type LiveResults interface {
	Latest() (roadquality.Result, bool)
	Events(limit int) []roadquality.Event
	Processed() int64
}

// Store is the persisted history of a drive.
type Store interface {
	RecentScores(ctx context.Context, limit int) ([]db.ScorePoint, error)
	ListEvents(ctx context.Context, limit int) ([]roadquality.Event, error)
	EventCountsByType(ctx context.Context) ([]db.EventCount, error)
	Sessions(ctx context.Context) ([]db.SessionSummary, error)
}

type Server struct {
	live  LiveResults
	store Store
	diag  *monitoring.Diagnostics
	m     serialmux.SerialMuxInterface
	title string
}

// NewServer builds the HTTP API. store, diag and m may be nil; the routes
// that need them then answer 503.
func NewServer(live LiveResults, store Store, diag *monitoring.Diagnostics, m serialmux.SerialMuxInterface) *Server {
	return &Server{
		live:  live,
		store: store,
		diag:  diag,
		m:     m,
		title: "Road quality",
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quality", s.showQuality)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/events/summary", s.eventSummary)
	mux.HandleFunc("/api/scores", s.listScores)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/diagnostics", s.showDiagnostics)
	mux.HandleFunc("/charts/quality", s.qualityChartHTML)
	mux.HandleFunc("/charts/quality.png", s.qualityChartPNG)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

type qualityResponse struct {
	Ready  bool                `json:"ready"`
	Result *roadquality.Result `json:"result,omitempty"`
}

func (s *Server) showQuality(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	res, ok := s.live.Latest()
	if !ok {
		httputil.WriteJSONOK(w, qualityResponse{})
		return
	}
	httputil.WriteJSONOK(w, qualityResponse{Ready: true, Result: &res})
}

// listEvents serves persisted events when a store is attached and the
// worker's in-memory window otherwise.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := httputil.QueryLimit(r, defaultEventLimit, maxLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if s.store == nil {
		events := s.live.Events(limit)
		if events == nil {
			events = []roadquality.Event{}
		}
		httputil.WriteJSONOK(w, events)
		return
	}
	events, err := s.store.ListEvents(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list events: "+err.Error())
		return
	}
	if events == nil {
		events = []roadquality.Event{}
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) eventSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireStore(w) {
		return
	}
	counts, err := s.store.EventCountsByType(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to count events: "+err.Error())
		return
	}
	if counts == nil {
		counts = []db.EventCount{}
	}
	httputil.WriteJSONOK(w, counts)
}

func (s *Server) listScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireStore(w) {
		return
	}
	limit, err := httputil.QueryLimit(r, defaultScoreLimit, maxLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	scores, err := s.store.RecentScores(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list scores: "+err.Error())
		return
	}
	if scores == nil {
		scores = []db.ScorePoint{}
	}
	httputil.WriteJSONOK(w, scores)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireStore(w) {
		return
	}
	sessions, err := s.store.Sessions(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to list sessions: "+err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.SessionSummary{}
	}
	httputil.WriteJSONOK(w, sessions)
}

type serialStats interface {
	Stats() (lines, dropped int64)
}

type diagnosticsResponse struct {
	Processed     int64                     `json:"processed"`
	Counters      []monitoring.CounterValue `json:"counters"`
	SerialLines   int64                     `json:"serial_lines"`
	SerialDropped int64                     `json:"serial_dropped"`
}

func (s *Server) showDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := diagnosticsResponse{
		Processed: s.live.Processed(),
		Counters:  []monitoring.CounterValue{},
	}
	if s.diag != nil {
		resp.Counters = append(resp.Counters, s.diag.Snapshot()...)
	}
	if st, ok := s.m.(serialStats); ok {
		resp.SerialLines, resp.SerialDropped = st.Stats()
	}
	httputil.WriteJSONOK(w, resp)
}

// timeline loads the recent score history and the events recorded in it.
func (s *Server) timeline(ctx context.Context, limit int) (chart.Timeline, error) {
	tl := chart.Timeline{Title: s.title}
	scores, err := s.store.RecentScores(ctx, limit)
	if err != nil {
		return tl, err
	}
	tl.Samples = make([]chart.Sample, len(scores))
	for i, p := range scores {
		tl.Samples[i] = chart.Sample{
			Timestamp:    p.Timestamp,
			Score:        p.Score,
			LidarScore:   p.LidarScore,
			AccelScore:   p.AccelScore,
			TextureScore: p.TextureScore,
		}
	}
	if len(scores) == 0 {
		return tl, nil
	}
	events, err := s.store.ListEvents(ctx, maxLimit)
	if err != nil {
		return tl, err
	}
	first := scores[0].Timestamp
	for _, e := range events {
		if !e.Timestamp.Before(first) {
			tl.Events = append(tl.Events, e)
		}
	}
	return tl, nil
}

func (s *Server) qualityChartHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireStore(w) {
		return
	}
	limit, err := httputil.QueryLimit(r, defaultScoreLimit, maxLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	tl, err := s.timeline(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to load scores: "+err.Error())
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderQualityHTML(&buf, tl); err != nil {
		httputil.InternalServerError(w, "failed to render chart: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.Copy(w, &buf)
}

func (s *Server) qualityChartPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireStore(w) {
		return
	}
	limit, err := httputil.QueryLimit(r, defaultScoreLimit, maxLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	width, err := inchesParam(r, "width", chart.DefaultWidth)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	height, err := inchesParam(r, "height", chart.DefaultHeight)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	tl, err := s.timeline(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to load scores: "+err.Error())
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderQualityPNG(&buf, tl, width, height); err != nil {
		httputil.InternalServerError(w, "failed to render chart: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	io.Copy(w, &buf)
}

// inchesParam parses an optional chart dimension in inches (1 to 40).
func inchesParam(r *http.Request, name string, def vg.Length) (vg.Length, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 1 || v > 40 {
		return 0, fmt.Errorf("invalid %s %q: want inches between 1 and 40", name, raw)
	}
	return vg.Length(v) * vg.Inch, nil
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.m == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no serial bridge attached")
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if !serialmux.IsAllowedCommand(command) {
		httputil.WriteJSONError(w, http.StatusForbidden, "command not allowed")
		return
	}
	if err := s.m.SendCommand(command); errors.Is(err, serialmux.ErrBridgeDisabled) {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	} else if err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": command})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database attached")
		return false
	}
	return true
}
