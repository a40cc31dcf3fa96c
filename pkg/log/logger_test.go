package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	perrors "github.com/YuminosukeSato/advnet/pkg/errors"
)

// TestLoggerInterface tests the TestLogger implementation
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationWarmup)
	testLogger.Warn("warning message", ObjectKey, "barrel")
	testLogger.Error("error message", fmt.Errorf("disk full"), PathKey, "/tmp/ckpt")

	if buffer.String() == "" {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField("number", 42.0) { // JSON unmarshaling converts numbers to float64
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(PathKey, "/tmp/ckpt") {
		t.Error("leading error must not shift the key/value pairs")
	}
	if !testLogger.ContainsField(ErrAttrKey, "disk full") {
		t.Error("leading error should be stored under the error key")
	}
}

// TestLoggerWith tests the With method for context-aware logging
func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		RunIDKey, "run-1",
		ArchKey, "SimpleNet",
	)
	contextLogger.Info("validation finished", GlobalStepKey, 500)

	if !testLogger.ContainsField(RunIDKey, "run-1") {
		t.Error("run id context not found")
	}
	if !testLogger.ContainsField(ArchKey, "SimpleNet") {
		t.Error("arch context not found")
	}
	if !testLogger.ContainsField(GlobalStepKey, 500.0) {
		t.Error("global step not found")
	}
}

// TestLoggerEnabled tests level filtering
func TestLoggerEnabled(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelWarn)
	ctx := context.Background()

	if testLogger.Enabled(ctx, LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !testLogger.Enabled(ctx, LevelError) {
		t.Error("error should be enabled at warn level")
	}

	testLogger.Info("hidden")
	if strings.Contains(buffer.String(), "hidden") {
		t.Error("info message should have been filtered")
	}
}

func TestZerologProviderJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, LevelInfo)

	logger := p.GetLoggerWithName("checkpoint").With(RunIDKey, "abc")
	logger.Debug("not emitted")
	logger.Error("save failed", perrors.New("boom"), PathKey, "/ckpt")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry[ComponentKey] != "checkpoint" {
		t.Errorf("component = %v", entry[ComponentKey])
	}
	if entry[RunIDKey] != "abc" {
		t.Errorf("run id = %v", entry[RunIDKey])
	}
	if entry[PathKey] != "/ckpt" {
		t.Errorf("path = %v", entry[PathKey])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
	if entry["level"] != "error" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupLoggerTo(&buf, "info", FormatJSON); err != nil {
		t.Fatal(err)
	}
	defer perrors.SetZerologWarnFunc(nil)

	perrors.Warn(perrors.NewSchemaWarning("ckpt/history.snappy", "test_ufr", "filled with zeros"))

	out := buf.String()
	if !strings.Contains(out, `"component":"warnings"`) {
		t.Errorf("expected warnings component, got %s", out)
	}
	if !strings.Contains(out, `"missing":"test_ufr"`) {
		t.Errorf("expected structured warning object, got %s", out)
	}
}

func TestSetupLoggerCloudFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupLoggerTo(&buf, "debug", FormatCloud); err != nil {
		t.Fatal(err)
	}
	defer perrors.SetZerologWarnFunc(nil)

	GetLoggerWithName("training").Error("step failed", perrors.New("nan"), GlobalStepKey, 3)

	out := buf.String()
	if !strings.Contains(out, `"severity":"ERROR"`) {
		t.Errorf("expected cloud severity key, got %s", out)
	}
	if !strings.Contains(out, `"message":"step failed"`) {
		t.Errorf("expected cloud message key, got %s", out)
	}
	if !strings.Contains(out, StacktraceAttrKey) {
		t.Errorf("expected stack trace attribute, got %s", out)
	}
}

func TestSetupLoggerCloudFormatTypedErrorDetails(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupLoggerTo(&buf, "info", FormatCloud); err != nil {
		t.Fatal(err)
	}
	defer perrors.SetZerologWarnFunc(nil)

	err := perrors.Wrap(perrors.NewNumericalInstabilityError("generator loss", []float64{1}, 42), "cycle")
	GetLogger().Error("run aborted", err)

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("output is not a single JSON record: %v\n%s", err, buf.String())
	}
	details, ok := record[ErrDetailsAttrKey].(map[string]any)
	if !ok {
		t.Fatalf("expected %s object, got %s", ErrDetailsAttrKey, buf.String())
	}
	if details["global_step"] != 42.0 {
		t.Errorf("global_step = %v, want 42", details["global_step"])
	}
	if details["type"] != "NumericalInstabilityError" {
		t.Errorf("type = %v", details["type"])
	}
}

func TestSetupLoggerRejectsUnknownValues(t *testing.T) {
	var cfgErr *perrors.ConfigError

	err := SetupLoggerTo(&bytes.Buffer{}, "verbose", FormatJSON)
	if !perrors.As(err, &cfgErr) || cfgErr.Field != "log_level" {
		t.Errorf("expected log_level ConfigError, got %v", err)
	}

	err = SetupLoggerTo(&bytes.Buffer{}, "info", "xml")
	if !perrors.As(err, &cfgErr) || cfgErr.Field != "log_format" {
		t.Errorf("expected log_format ConfigError, got %v", err)
	}
}

// TestConcurrentLogging tests thread safety of the test logger
func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l := testLogger.With("worker", id)
			for j := 0; j < 10; j++ {
				l.Info("step", GlobalStepKey, j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 100 {
		t.Errorf("Expected 100 entries, got %d", len(entries))
	}
}
