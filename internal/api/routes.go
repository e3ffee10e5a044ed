package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/auth"
	"github.com/gioimtg2003/control-drone-first/internal/command"
	"github.com/gioimtg2003/control-drone-first/internal/session"
	"github.com/gioimtg2003/control-drone-first/internal/storage"
)

const apiV1 = "/api/v1"

// maxBodyBytes bounds request bodies; every request type is a few fields.
const maxBodyBytes = 4 << 10

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	// Observer access
	mux.HandleFunc(apiV1+"/capabilities", s.protect(s.handleCapabilities, auth.ScopeTelemetry))
	mux.HandleFunc(apiV1+"/ports", s.protect(s.handlePorts, auth.ScopeTelemetry))
	mux.HandleFunc(apiV1+"/session", s.protect(s.handleSession, auth.ScopeTelemetry))
	mux.HandleFunc(apiV1+"/recording", s.protect(s.handleRecording, auth.ScopeTelemetry))
	mux.HandleFunc(apiV1+"/snapshot", s.protect(s.handleSnapshot, auth.ScopeTelemetry))
	mux.HandleFunc(apiV1+"/exports", s.protect(s.handleExports, auth.ScopeTelemetry))
	mux.HandleFunc(apiV1+"/telemetry", s.protect(s.handleTelemetry, auth.ScopeTelemetry))

	// Pilot access
	mux.HandleFunc(apiV1+"/session/connect", s.protectPilot(s.handleConnect, auth.ScopeSession))
	mux.HandleFunc(apiV1+"/session/disconnect", s.protectPilot(s.handleDisconnect, auth.ScopeSession))
	mux.HandleFunc(apiV1+"/recording/start", s.protectPilot(s.handleRecordingStart, auth.ScopeSession))
	mux.HandleFunc(apiV1+"/recording/stop", s.protectPilot(s.handleRecordingStop, auth.ScopeSession))
	mux.HandleFunc(apiV1+"/export", s.protectPilot(s.handleExport, auth.ScopeSession))
	mux.HandleFunc(apiV1+"/motors/test", s.protectPilot(s.handleMotorTest, auth.ScopeCommand))
	mux.HandleFunc(apiV1+"/motors/throttle", s.protectPilot(s.handleThrottle, auth.ScopeCommand))
}

// protect requires authentication and scope. Without auth middleware the
// handler is registered as is.
func (s *Server) protect(h http.HandlerFunc, scope string) http.HandlerFunc {
	if s.authMiddleware == nil {
		return h
	}
	return s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(scope)(h))
}

// protectPilot additionally requires the pilot role.
func (s *Server) protectPilot(h http.HandlerFunc, scope string) http.HandlerFunc {
	if s.authMiddleware == nil {
		return h
	}
	return s.authMiddleware.RequireAuth(
		s.authMiddleware.RequireRole(auth.RolePilot)(
			s.authMiddleware.RequireScope(scope)(h)))
}

// decodeStrict decodes one JSON object into v, rejecting unknown fields
// and trailing data.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("Malformed JSON or unknown fields")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return badRequest("Trailing data after JSON object")
	}
	return nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	subsystems := map[string]bool{
		"session":   s.session != nil,
		"telemetry": s.telemetryHub != nil,
		"motors":    s.motors != nil,
		"exporter":  s.exporter != nil,
		"archive":   s.archive != nil,
	}

	health := map[string]interface{}{
		"status":     "ok",
		"uptimeSec":  time.Since(s.startTime).Seconds(),
		"version":    Version,
		"subsystems": subsystems,
	}

	// The archive is optional; everything else is required.
	if !subsystems["session"] || !subsystems["telemetry"] || !subsystems["motors"] || !subsystems["exporter"] {
		health["status"] = "degraded"
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"One or more subsystems are unavailable", health)
		return
	}

	health["session"] = s.session.Info().State
	WriteSuccess(w, health)
}

// handleCapabilities handles GET /capabilities
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	durations := make([]int, len(command.ValidDurations))
	for i, d := range command.ValidDurations {
		durations[i] = int(d / time.Second)
	}
	channels := make([]string, len(adapter.Channels))
	for i, ch := range adapter.Channels {
		channels[i] = string(ch)
	}

	WriteSuccess(w, map[string]interface{}{
		"baudRates":    session.BaudRates,
		"motors":       command.Motors,
		"allMotors":    command.MotorAll,
		"durationsSec": durations,
		"maxThrottle":  command.MaxThrottle,
		"channels":     channels,
		"telemetry":    []string{"sse"},
		"commands":     []string{"http-json"},
		"version":      Version,
	})
}

// handlePorts handles GET /ports
func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	ports, err := s.session.ListPorts(r.Context())
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	WriteSuccess(w, map[string]interface{}{"ports": ports})
}

// handleSession handles GET /session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	WriteSuccess(w, s.session.Info())
}

// handleConnect handles POST /session/connect. The port list is refreshed
// first so a device plugged in after the last enumeration is accepted.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req struct {
		Port string `json:"port"`
		Baud int    `json:"baud"`
	}
	if err := decodeStrict(r, &req); err != nil {
		WriteAPIError(w, err)
		return
	}
	if req.Port == "" || req.Baud == 0 {
		WriteAPIError(w, badRequest("port and baud are required"))
		return
	}

	start := time.Now()
	params := map[string]interface{}{"port": req.Port, "baud": req.Baud}

	if _, err := s.session.ListPorts(r.Context()); err != nil {
		s.logAudit(r.Context(), "connect", "", params, err, start)
		WriteAPIError(w, err)
		return
	}

	info, err := s.session.Connect(r.Context(), req.Port, req.Baud)
	s.logAudit(r.Context(), "connect", info.SessionID, params, err, start)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, info)
}

// handleDisconnect handles POST /session/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	start := time.Now()
	sessionID := s.session.SessionID()
	err := s.session.Disconnect(r.Context())
	s.logAudit(r.Context(), "disconnect", sessionID, nil, err, start)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, s.session.Info())
}

type recordingView struct {
	State    string `json:"state"`
	Recorded int64  `json:"recorded"`
}

func (s *Server) recordingView() recordingView {
	return recordingView{
		State:    string(s.session.RecordingState()),
		Recorded: s.session.Recorded(),
	}
}

// handleRecording handles GET /recording
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	WriteSuccess(w, s.recordingView())
}

// handleRecordingStart handles POST /recording/start
func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	start := time.Now()
	s.session.StartRecording()
	s.logAudit(r.Context(), "recordingStart", s.session.SessionID(), nil, nil, start)
	WriteSuccess(w, s.recordingView())
}

// handleRecordingStop handles POST /recording/stop
func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	start := time.Now()
	s.session.StopRecording()
	s.logAudit(r.Context(), "recordingStop", s.session.SessionID(), nil, nil, start)
	WriteSuccess(w, s.recordingView())
}

// handleSnapshot handles GET /snapshot: the export document plus derived
// status, without writing a file.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	var motorTest interface{}
	if s.motors != nil {
		if active, ok := s.motors.ActiveTest(); ok {
			motorTest = active
		}
	}

	WriteSuccess(w, map[string]interface{}{
		"session":   s.session.Info(),
		"recording": s.recordingView(),
		"status":    s.session.Aggregator().Status(),
		"document":  s.exporter.Snapshot(time.Now()),
		"motorTest": motorTest,
	})
}

// handleExport handles POST /export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	start := time.Now()
	result, err := s.exporter.Export(r.Context())
	s.logAudit(r.Context(), "export", s.session.SessionID(), map[string]interface{}{"file": result.FileName}, err, start)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, result)
}

// handleExports handles GET /exports?limit=N
func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.archive == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Export archive not configured", nil)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteAPIError(w, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := s.archive.Exports(r.Context(), limit)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	if records == nil {
		records = []storage.ExportRecord{}
	}
	WriteSuccess(w, map[string]interface{}{"exports": records})
}

// handleMotorTest handles POST and DELETE /motors/test
func (s *Server) handleMotorTest(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Motor    string `json:"motor"`
			Duration int    `json:"duration"`
			Throttle *int   `json:"throttle"`
		}
		if err := decodeStrict(r, &req); err != nil {
			WriteAPIError(w, err)
			return
		}
		if req.Throttle == nil {
			WriteAPIError(w, badRequest("throttle is required"))
			return
		}

		status, err := s.motors.TestMotor(r.Context(), req.Motor, time.Duration(req.Duration)*time.Second, *req.Throttle)
		if err != nil {
			WriteAPIError(w, err)
			return
		}
		WriteSuccess(w, status)

	case http.MethodDelete:
		if err := s.motors.StopTest(r.Context()); err != nil {
			WriteAPIError(w, err)
			return
		}
		WriteSuccess(w, map[string]interface{}{"status": "stopped"})

	default:
		writeMethodNotAllowed(w, "POST, DELETE")
	}
}

// handleThrottle handles POST /motors/throttle
func (s *Server) handleThrottle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req struct {
		Percent *int `json:"percent"`
	}
	if err := decodeStrict(r, &req); err != nil {
		WriteAPIError(w, err)
		return
	}
	if req.Percent == nil {
		WriteAPIError(w, badRequest("percent is required"))
		return
	}

	if err := s.motors.SetThrottle(r.Context(), *req.Percent); err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"throttle": *req.Percent})
}

// handleTelemetry handles GET /telemetry (SSE)
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Telemetry service not available", nil)
		return
	}

	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		s.logger.Warn("telemetry subscription ended", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Failed to subscribe to telemetry stream", nil)
		return
	}
}
