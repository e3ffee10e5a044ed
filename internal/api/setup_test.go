package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gioimtg2003/control-drone-first/internal/adapter/fake"
	"github.com/gioimtg2003/control-drone-first/internal/audit"
	"github.com/gioimtg2003/control-drone-first/internal/auth"
	"github.com/gioimtg2003/control-drone-first/internal/command"
	"github.com/gioimtg2003/control-drone-first/internal/config"
	"github.com/gioimtg2003/control-drone-first/internal/export"
	"github.com/gioimtg2003/control-drone-first/internal/session"
	"github.com/gioimtg2003/control-drone-first/internal/storage"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

const testPort = "/dev/ttyUSB0"

type testEnv struct {
	server   *Server
	handler  http.Handler
	link     *fake.FakeLink
	manager  *session.Manager
	hub      *telemetry.Hub
	archive  *storage.Archive
	auditBuf *bytes.Buffer
}

// setupAPITest wires the full stack over a fake link.
func setupAPITest(t *testing.T, middleware *auth.Middleware, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.LoadBaseline()
	for _, fn := range mutate {
		fn(cfg)
	}

	hub := telemetry.NewHub(cfg.Telemetry)
	t.Cleanup(hub.Stop)

	link := fake.NewFakeLink()
	mgr := session.NewManager(link, cfg.Session, session.WithPublisher(hub))
	t.Cleanup(func() { _ = mgr.Disconnect(context.Background()) })

	auditBuf := &bytes.Buffer{}
	auditLogger := audit.NewWriterLogger(auditBuf)

	orch := command.NewOrchestrator(link, mgr, hub, cfg.Motor, nil)
	orch.SetAuditLogger(auditLogger)

	archive := storage.NewArchive(filepath.Join(t.TempDir(), "archive.db"))
	t.Cleanup(func() { _ = archive.Close() })

	exporter := export.NewExporter(mgr.Aggregator(), t.TempDir(),
		export.WithArchive(archive),
		export.WithPublisher(hub))

	server := NewServer(Dependencies{
		Session:   mgr,
		Telemetry: hub,
		Motors:    orch,
		Exporter:  exporter,
		Archive:   archive,
		Audit:     auditLogger,
		Auth:      middleware,
	}, cfg.Server)

	return &testEnv{
		server:   server,
		handler:  server.Handler(),
		link:     link,
		manager:  mgr,
		hub:      hub,
		archive:  archive,
		auditBuf: auditBuf,
	}
}

type envelope struct {
	Result        string          `json:"result"`
	Data          json.RawMessage `json:"data"`
	Code          string          `json:"code"`
	Message       string          `json:"message"`
	Details       json.RawMessage `json:"details"`
	CorrelationID string          `json:"correlationId"`
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: response is not an envelope: %v\n%s", method, path, err, rec.Body.String())
	}
	if env.CorrelationID == "" {
		t.Errorf("%s %s: missing correlationId", method, path)
	}
	return rec.Code, env
}

func (e *testEnv) connect(t *testing.T) session.Info {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/v1/session/connect", `{"port":"`+testPort+`","baud":57600}`, "")
	if status != http.StatusOK {
		t.Fatalf("connect status = %d, code = %s, message = %s", status, env.Code, env.Message)
	}
	var info session.Info
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decode session info: %v", err)
	}
	return info
}
