package log

import (
	"context"
	"fmt"
	"sync"
	"testing"

	rcerrors "github.com/YuminosukeSato/ridecast/pkg/errors"
)

// TestLoggerInterface tests the Logger interface implementation
func TestLoggerInterface(t *testing.T) {
	testLogger := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", "warning_code", "TEST_WARNING")
	testLogger.Error("error message", fmt.Errorf("test error"), "error_code", "TEST_ERROR")

	if testLogger.String() == "" {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	if !testLogger.ContainsField("number", 42.0) { // JSON numbers decode as float64
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField("error", "test error") {
		t.Error("Leading error argument should be logged under the error key")
	}
	if !testLogger.ContainsField("error_code", "TEST_ERROR") {
		t.Error("Fields after the leading error should be kept")
	}
}

// TestLoggerWith tests the With method for context-aware logging
func TestLoggerWith(t *testing.T) {
	testLogger := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelNameKey, "RandomForest",
		RunIDKey, "run-001",
	)
	contextLogger.Info("contextual message", StageKey, "train")

	if !testLogger.ContainsField(ModelNameKey, "RandomForest") {
		t.Error("Model name context not found")
	}
	if !testLogger.ContainsField(RunIDKey, "run-001") {
		t.Error("Run id context not found")
	}
	if !testLogger.ContainsField(StageKey, "train") {
		t.Error("Stage field not found")
	}
}

// TestLoggerEnabled tests the Enabled method
func TestLoggerEnabled(t *testing.T) {
	testLogger := NewTestLogger(LevelInfo)
	ctx := context.Background()

	if !testLogger.Enabled(ctx, LevelInfo) {
		t.Error("Logger should be enabled for Info level")
	}
	if !testLogger.Enabled(ctx, LevelError) {
		t.Error("Logger should be enabled for Error level")
	}
	if testLogger.Enabled(ctx, LevelDebug) {
		t.Error("Logger should not be enabled for Debug level")
	}

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")

	if testLogger.ContainsMessage("this should not appear") {
		t.Error("Debug message should not appear when level is Info")
	}
	if !testLogger.ContainsMessage("this should appear") {
		t.Error("Info message should appear when level is Info")
	}
}

func TestMetricAttributeKeys(t *testing.T) {
	testLogger := NewTestLogger(LevelInfo)

	testLogger.Info("Variant evaluated",
		OperationKey, OperationEvaluate,
		ModelNameKey, "XGBoost",
		SamplesKey, 1000,
		MAEKey, 1.5,
		RMSEKey, 2.25,
		R2ScoreKey, 0.8,
	)

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}

	expectedFields := map[string]interface{}{
		OperationKey: OperationEvaluate,
		ModelNameKey: "XGBoost",
		SamplesKey:   1000.0,
		MAEKey:       1.5,
		RMSEKey:      2.25,
		R2ScoreKey:   0.8,
		"level":      "info",
	}
	for key, expected := range expectedFields {
		if actual, ok := entries[0][key]; !ok {
			t.Errorf("Expected field %s not found", key)
		} else if actual != expected {
			t.Errorf("Field %s: expected %v, got %v", key, expected, actual)
		}
	}
}

// TestLoggerProviderIntegration tests the LoggerProvider interface
func TestLoggerProviderIntegration(t *testing.T) {
	provider := NewTestLoggerProvider(LevelDebug)

	provider.GetLogger().Info("provider test message")
	provider.GetLoggerWithName("artifact").Info("named logger message")

	captured := provider.Logger()
	if !captured.ContainsMessage("provider test message") {
		t.Error("Provider test message not found")
	}
	if !captured.ContainsField(ComponentKey, "artifact") {
		t.Error("Component name not found in named logger output")
	}

	provider.SetLevel(LevelError)
	captured.Clear()
	provider.GetLogger().Info("suppressed")
	if captured.ContainsMessage("suppressed") {
		t.Error("Info record should be dropped after SetLevel(LevelError)")
	}
}

func TestErrorStacktrace(t *testing.T) {
	testLogger := NewTestLogger(LevelError)

	err := rcerrors.NewInsufficientDataError(1, 2)
	testLogger.Error("Split failed", err, StageKey, "split")

	entries, parseErr := testLogger.GetLogEntries()
	if parseErr != nil {
		t.Fatalf("Failed to parse log entries: %v", parseErr)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 error entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["level"] != "error" {
		t.Errorf("Expected error level, got %v", entry["level"])
	}
	if entry["error"] != err.Error() {
		t.Errorf("error field = %v, want %q", entry["error"], err.Error())
	}
	if st, _ := entry[StacktraceKey].(string); st == "" {
		t.Error("Expected a stack trace for a WithStack error")
	}
}

func TestSetLoggerRoutesWarnings(t *testing.T) {
	prev := GetLogger()
	testLogger := NewTestLogger(LevelDebug)
	SetLogger(testLogger)
	defer func() {
		SetLogger(prev)
		rcerrors.SetZerologWarnFunc(nil)
	}()

	rcerrors.Warn(rcerrors.NewUndefinedMetricWarning("r2", "zero variance in y_true", 0))

	if !testLogger.ContainsMessage("warning") {
		t.Fatal("Warning was not routed to the configured logger")
	}
	if !testLogger.ContainsField(ErrorTypeKey, "*errors.UndefinedMetricWarning") {
		t.Error("Warning type not recorded")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLoggerRejectsUnknownFormat(t *testing.T) {
	if err := SetupLogger("info", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

// TestConcurrentLogging tests thread safety of logging
func TestConcurrentLogging(t *testing.T) {
	testLogger := NewTestLogger(LevelInfo)

	const numGoroutines, messagesPerGoroutine = 4, 5
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				testLogger.Info(fmt.Sprintf("goroutine %d message %d", id, j),
					WorkersKey, id,
					IterationKey, j,
				)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != numGoroutines*messagesPerGoroutine {
		t.Errorf("Expected %d log entries, got %d", numGoroutines*messagesPerGoroutine, len(entries))
	}
}

// BenchmarkLoggingWithContext benchmarks logging with contextual fields
func BenchmarkLoggingWithContext(b *testing.B) {
	contextLogger := NewTestLogger(LevelInfo).With(
		ModelNameKey, "BenchmarkModel",
		ComponentKey, "benchmark",
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		contextLogger.Info("benchmark message",
			IterationKey, i,
			OperationKey, OperationPredict,
		)
	}
}
