package command

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/config"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

// TestStatus describes a running motor test.
type TestStatus struct {
	Motor     string        `json:"motor"`
	Label     string        `json:"label"`
	Throttle  int           `json:"throttle"`
	Duration  time.Duration `json:"-"`
	StartedAt time.Time     `json:"startedAt"`
	EndsAt    time.Time     `json:"endsAt"`
}

type task struct {
	status TestStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator routes validated motor intents to the vehicle link.
type Orchestrator struct {
	link      adapter.Link
	session   Session
	publisher Publisher
	cfg       config.MotorConfig
	logger    *slog.Logger

	// Audit logger (optional)
	auditLogger AuditLogger

	mu     sync.Mutex
	active *task
}

// NewOrchestrator creates a motor orchestrator and registers a teardown
// hook that cancels any running test when the session ends.
func NewOrchestrator(link adapter.Link, sess Session, publisher Publisher, cfg config.MotorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		link:      link,
		session:   sess,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
	sess.OnTeardown(o.teardown)
	return o
}

// SetAuditLogger sets the audit logger.
func (o *Orchestrator) SetAuditLogger(logger AuditLogger) {
	o.auditLogger = logger
}

// TestMotor spins motor (or MotorAll) at throttle for duration. The motors
// are stopped when the duration ends.
func (o *Orchestrator) TestMotor(ctx context.Context, motor string, duration time.Duration, throttle int) (TestStatus, error) {
	start := time.Now()
	params := map[string]interface{}{
		"motor":      motor,
		"durationMs": duration.Milliseconds(),
		"throttle":   throttle,
	}

	if err := o.validateTest(motor, duration, throttle); err != nil {
		o.logAudit(ctx, "motorTest", params, err, time.Since(start))
		return TestStatus{}, err
	}
	if err := o.session.RequireConnected("motorTest"); err != nil {
		o.logAudit(ctx, "motorTest", params, err, time.Since(start))
		return TestStatus{}, err
	}

	// Reserve the slot before the round trip so a second test fails fast.
	taskCtx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		cancel()
		o.logAudit(ctx, "motorTest", params, ErrTestInProgress, time.Since(start))
		return TestStatus{}, ErrTestInProgress
	}
	o.active = t
	o.mu.Unlock()

	cmdCtx, cmdCancel := context.WithTimeout(ctx, o.cfg.CommandTimeout)
	err := o.link.TestMotor(cmdCtx, motor, throttle, duration)
	cmdCancel()
	if err != nil {
		o.clear(t)
		cancel()
		close(t.done)
		normalizedErr := adapter.NormalizeLinkError(err, nil)
		o.logAudit(ctx, "motorTest", params, normalizedErr, time.Since(start))
		o.publishFaultEvent(normalizedErr, "Failed to start motor test")
		return TestStatus{}, normalizedErr
	}

	label, _ := MotorLabel(motor)
	now := time.Now()
	status := TestStatus{
		Motor:     motor,
		Label:     label,
		Throttle:  throttle,
		Duration:  duration,
		StartedAt: now,
		EndsAt:    now.Add(duration),
	}
	o.mu.Lock()
	t.status = status
	o.mu.Unlock()

	go o.run(taskCtx, t)

	o.logAudit(ctx, "motorTest", params, nil, time.Since(start))
	o.publishMotorEvent("started", status)
	return status, nil
}

// StopTest cancels the running test and waits for the motors to stop. With
// no test running it sends a plain stop.
func (o *Orchestrator) StopTest(ctx context.Context) error {
	start := time.Now()

	o.mu.Lock()
	t := o.active
	o.mu.Unlock()

	if t != nil {
		t.cancel()
		select {
		case <-t.done:
		case <-ctx.Done():
			o.logAudit(ctx, "motorStop", nil, ctx.Err(), time.Since(start))
			return ctx.Err()
		}
		o.logAudit(ctx, "motorStop", nil, nil, time.Since(start))
		return nil
	}

	if err := o.session.RequireConnected("motorStop"); err != nil {
		o.logAudit(ctx, "motorStop", nil, err, time.Since(start))
		return err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, o.cfg.CommandTimeout)
	defer cancel()
	if err := o.link.StopMotors(cmdCtx); err != nil {
		normalizedErr := adapter.NormalizeLinkError(err, nil)
		o.logAudit(ctx, "motorStop", nil, normalizedErr, time.Since(start))
		o.publishFaultEvent(normalizedErr, "Failed to stop motors")
		return normalizedErr
	}

	o.logAudit(ctx, "motorStop", nil, nil, time.Since(start))
	o.publisher.PublishType(telemetry.EventMotor, map[string]interface{}{"status": "stopped"})
	return nil
}

// SetThrottle sets the global throttle. It is rejected while a test runs.
func (o *Orchestrator) SetThrottle(ctx context.Context, percent int) error {
	start := time.Now()
	params := map[string]interface{}{"percent": percent}

	if err := validateThrottle(percent); err != nil {
		o.logAudit(ctx, "setThrottle", params, err, time.Since(start))
		return err
	}
	if err := o.session.RequireConnected("setThrottle"); err != nil {
		o.logAudit(ctx, "setThrottle", params, err, time.Since(start))
		return err
	}
	if _, running := o.ActiveTest(); running {
		o.logAudit(ctx, "setThrottle", params, ErrTestInProgress, time.Since(start))
		return ErrTestInProgress
	}

	cmdCtx, cancel := context.WithTimeout(ctx, o.cfg.CommandTimeout)
	defer cancel()
	err := o.link.SetThrottle(cmdCtx, percent)
	latency := time.Since(start)

	if err != nil {
		normalizedErr := adapter.NormalizeLinkError(err, nil)
		o.logAudit(ctx, "setThrottle", params, normalizedErr, latency)
		o.publishFaultEvent(normalizedErr, "Failed to set throttle")
		return normalizedErr
	}

	o.logAudit(ctx, "setThrottle", params, nil, latency)
	o.publisher.PublishType(telemetry.EventMotor, map[string]interface{}{
		"status":   "throttle",
		"throttle": percent,
	})
	return nil
}

// ActiveTest returns the running test, if any.
func (o *Orchestrator) ActiveTest() (TestStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || o.active.status.Motor == "" {
		return TestStatus{}, o.active != nil
	}
	return o.active.status, true
}

// run waits out the test and then stops the motors.
func (o *Orchestrator) run(ctx context.Context, t *task) {
	defer close(t.done)

	timer := time.NewTimer(t.status.Duration)
	defer timer.Stop()

	outcome := "completed"
	select {
	case <-timer.C:
	case <-ctx.Done():
		outcome = "cancelled"
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), o.cfg.CommandTimeout)
	defer cancel()
	err := o.link.StopMotors(stopCtx)
	o.clear(t)

	if err != nil {
		normalizedErr := adapter.NormalizeLinkError(err, nil)
		o.logger.Warn("stop motors failed", "motor", t.status.Motor, "error", normalizedErr)
		o.publishFaultEvent(normalizedErr, "Failed to stop motors")
	}
	o.publishMotorEvent(outcome, t.status)
}

// teardown cancels a running test before the session releases the link.
func (o *Orchestrator) teardown(ctx context.Context) {
	o.mu.Lock()
	t := o.active
	var motor string
	if t != nil {
		motor = t.status.Motor
	}
	o.mu.Unlock()
	if t == nil {
		return
	}

	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
		o.logger.Warn("motor test did not stop before teardown deadline", "motor", motor)
	}
}

func (o *Orchestrator) clear(t *task) {
	o.mu.Lock()
	if o.active == t {
		o.active = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) validateTest(motor string, duration time.Duration, throttle int) error {
	if err := validateMotor(motor); err != nil {
		return err
	}
	if err := validateDuration(duration); err != nil {
		return err
	}
	return validateThrottle(throttle)
}

func (o *Orchestrator) publishMotorEvent(status string, t TestStatus) {
	o.publisher.PublishType(telemetry.EventMotor, map[string]interface{}{
		"status":     status,
		"motor":      t.Motor,
		"label":      t.Label,
		"throttle":   t.Throttle,
		"durationMs": t.Duration.Milliseconds(),
	})
}

// publishFaultEvent publishes a fault event.
func (o *Orchestrator) publishFaultEvent(err error, message string) {
	o.publisher.PublishType(telemetry.EventFault, map[string]interface{}{
		"sessionId": o.session.SessionID(),
		"code":      codeOf(err),
		"message":   message,
		"details":   err.Error(),
	})
}

// logAudit logs an audit entry.
func (o *Orchestrator) logAudit(ctx context.Context, action string, params map[string]interface{}, err error, latency time.Duration) {
	if o.auditLogger != nil {
		o.auditLogger.LogAction(ctx, action, o.session.SessionID(), params, err, latency)
	}
}

func codeOf(err error) string {
	var le *adapter.LinkError
	if errors.As(err, &le) {
		return le.Code.Error()
	}
	return "INTERNAL"
}
