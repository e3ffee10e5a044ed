// Package adaptertest provides a conformance suite for adapter.Link
// implementations.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
)

// Capabilities describes the link under test.
type Capabilities struct {
	Name string
	// Port must appear in ListPorts and accept Connect.
	Port string
	Baud int
	// MaxConnect bounds how long a healthy Connect may take.
	MaxConnect time.Duration
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	AdapterName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

type check func(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error

// RunConformance runs the complete conformance suite. Each check gets a
// fresh link from newLink.
func RunConformance(t *testing.T, newLink func() adapter.Link, caps Capabilities) {
	t.Helper()
	startTime := time.Now()

	if caps.MaxConnect <= 0 {
		caps.MaxConnect = 5 * time.Second
	}
	report := &ConformanceReport{
		AdapterName:   caps.Name,
		OverallPassed: true,
	}

	checks := []struct {
		name string
		run  check
	}{
		{"ListPorts_IncludesPort", checkListPorts},
		{"Connect_Disconnect", checkConnectDisconnect},
		{"Connect_CancelledContext", checkConnectCancelled},
		{"Subscribe_ReleaseOnce", checkReleaseOnce},
		{"Subscribe_AllChannels", checkAllChannels},
		{"StartStream_AfterConnect", checkStartStream},
		{"Motors_AfterConnect", checkMotors},
		{"Failures_Normalize", checkFailureMapping},
	}

	for _, c := range checks {
		result := ConformanceResult{TestName: c.name, Details: make(map[string]interface{})}
		ctx, cancel := context.WithTimeout(context.Background(), caps.MaxConnect+5*time.Second)
		start := time.Now()
		err := c.run(ctx, newLink(), caps, result.Details)
		result.Duration = time.Since(start)
		cancel()

		result.Passed = err == nil
		if err != nil {
			result.Error = err.Error()
		}
		report.addResult(result)
	}

	report.Duration = time.Since(startTime)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Link conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

func checkListPorts(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	ports, err := link.ListPorts(ctx)
	if err != nil {
		return fmt.Errorf("ListPorts failed: %w", err)
	}
	details["ports"] = len(ports)
	if !slices.Contains(ports, caps.Port) {
		return fmt.Errorf("ListPorts = %v, missing %s", ports, caps.Port)
	}
	return nil
}

func checkConnectDisconnect(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	start := time.Now()
	if err := link.Connect(ctx, caps.Port, caps.Baud); err != nil {
		return fmt.Errorf("Connect failed: %w", err)
	}
	details["connect"] = time.Since(start).Round(time.Millisecond)
	if elapsed := time.Since(start); elapsed > caps.MaxConnect {
		return fmt.Errorf("Connect took %v, limit %v", elapsed, caps.MaxConnect)
	}
	if err := link.Disconnect(ctx); err != nil {
		return fmt.Errorf("Disconnect failed: %w", err)
	}
	return nil
}

func checkConnectCancelled(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	err := link.Connect(cancelled, caps.Port, caps.Baud)
	if err == nil {
		_ = link.Disconnect(ctx)
		return errors.New("Connect succeeded with a cancelled context")
	}
	return nil
}

func checkReleaseOnce(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	if err := link.Connect(ctx, caps.Port, caps.Baud); err != nil {
		return fmt.Errorf("Connect failed: %w", err)
	}
	defer func() { _ = link.Disconnect(ctx) }()

	release, err := link.Subscribe(ctx, adapter.ChannelBattery, func(adapter.Event) {})
	if err != nil {
		return fmt.Errorf("Subscribe failed: %w", err)
	}
	if release == nil {
		return errors.New("Subscribe returned a nil release")
	}
	if err := release(); err != nil {
		return fmt.Errorf("first release failed: %w", err)
	}
	if err := release(); err != nil {
		return fmt.Errorf("second release failed: %w", err)
	}
	return nil
}

func checkAllChannels(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	if err := link.Connect(ctx, caps.Port, caps.Baud); err != nil {
		return fmt.Errorf("Connect failed: %w", err)
	}
	defer func() { _ = link.Disconnect(ctx) }()

	var releases []adapter.Release
	for _, ch := range adapter.Channels {
		release, err := link.Subscribe(ctx, ch, func(adapter.Event) {})
		if err != nil {
			return fmt.Errorf("Subscribe(%s) failed: %w", ch, err)
		}
		releases = append(releases, release)
	}
	details["channels"] = len(releases)

	var errs []error
	for _, release := range releases {
		errs = append(errs, release())
	}
	return errors.Join(errs...)
}

func checkStartStream(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	if err := link.Connect(ctx, caps.Port, caps.Baud); err != nil {
		return fmt.Errorf("Connect failed: %w", err)
	}
	defer func() { _ = link.Disconnect(ctx) }()

	if err := link.StartTelemetryStream(ctx); err != nil {
		return fmt.Errorf("StartTelemetryStream failed: %w", err)
	}
	return nil
}

func checkMotors(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	if err := link.Connect(ctx, caps.Port, caps.Baud); err != nil {
		return fmt.Errorf("Connect failed: %w", err)
	}
	defer func() { _ = link.Disconnect(ctx) }()

	if err := link.TestMotor(ctx, "motor1", 10, time.Second); err != nil {
		return fmt.Errorf("TestMotor failed: %w", err)
	}
	if err := link.StopMotors(ctx); err != nil {
		return fmt.Errorf("StopMotors failed: %w", err)
	}
	if err := link.SetThrottle(ctx, 0); err != nil {
		return fmt.Errorf("SetThrottle failed: %w", err)
	}
	return nil
}

// checkFailureMapping requires that errors from a link used without a
// session normalize to a known code.
func checkFailureMapping(ctx context.Context, link adapter.Link, caps Capabilities, details map[string]interface{}) error {
	err := link.StartTelemetryStream(ctx)
	if err == nil {
		return nil
	}

	normalized := adapter.NormalizeLinkError(err, nil)
	details["code"] = errors.Unwrap(normalized)
	for _, code := range []error{adapter.ErrRejected, adapter.ErrTimeout, adapter.ErrBusy, adapter.ErrUnavailable, adapter.ErrInternal} {
		if errors.Is(normalized, code) {
			return nil
		}
	}
	return fmt.Errorf("error %v did not normalize", err)
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("LINK CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Link: %s", report.AdapterName)
	t.Logf("Passed: %d/%d", report.PassedTests, report.TotalTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))
	t.Logf("%-30s %-8s %-12s %-s", "TEST NAME", "RESULT", "DURATION", "DETAILS")

	for _, result := range report.Results {
		status := "PASS"
		details := result.Error
		if !result.Passed {
			status = "FAIL"
		} else if len(result.Details) > 0 {
			var parts []string
			for k, v := range result.Details {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			slices.Sort(parts)
			details = strings.Join(parts, " ")
		}
		t.Logf("%-30s %-8s %-12v %s", result.TestName, status, result.Duration.Round(time.Microsecond), details)
	}
}
