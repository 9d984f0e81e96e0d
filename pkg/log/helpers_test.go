package log

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// createTestLogger builds a LogHelper writing JSON into an in-memory buffer.
func createTestLogger() (*LogHelper, *bytes.Buffer) {
	buf := &bytes.Buffer{}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		TimeKey:     "time",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)

	zapLogger := zap.New(core)
	kratosLogger := NewKratosAdapter(zapLogger)

	return NewLogHelper(kratosLogger), buf
}

func TestNewLogHelper(t *testing.T) {
	zapLogger := zap.NewNop()
	kratosLogger := NewKratosAdapter(zapLogger)
	helper := NewLogHelper(kratosLogger)

	if helper == nil {
		t.Fatal("NewLogHelper returned nil")
	}
}

func TestLogHelper_Request(t *testing.T) {
	helper, buf := createTestLogger()

	helper.Request("POST", "/v1/events", 200, 150)

	output := buf.String()
	if output == "" {
		t.Error("Request log produced no output")
	}

	if !strings.Contains(output, "POST") {
		t.Error("Request log missing method")
	}
	if !strings.Contains(output, "200") {
		t.Error("Request log missing status code")
	}
	if !strings.Contains(output, "request") {
		t.Error("Request log missing 'request' type field")
	}
}

func TestLogHelper_Breaker(t *testing.T) {
	helper, buf := createTestLogger()

	helper.Breaker("circuit opened", "integration_id", "123", "category", "server")

	output := buf.String()
	if output == "" {
		t.Error("Breaker log produced no output")
	}

	if !strings.Contains(output, "breaker") {
		t.Error("Breaker log missing 'breaker' type field")
	}
	if !strings.Contains(output, `"level":"warn"`) {
		t.Error("Breaker log should be at warn level")
	}
}

func TestLogHelper_RateLimit(t *testing.T) {
	helper, buf := createTestLogger()

	helper.RateLimit("rate limit reached", "integration_id", "123")

	output := buf.String()
	if output == "" {
		t.Error("RateLimit log produced no output")
	}

	if !strings.Contains(output, "rate_limit") {
		t.Error("RateLimit log missing 'rate_limit' type field")
	}
}

func TestLogHelper_Rule(t *testing.T) {
	helper, buf := createTestLogger()

	helper.Rule("rule executed", "rule_id", "7", "order_id", "9001")

	output := buf.String()
	if output == "" {
		t.Error("Rule log produced no output")
	}

	if !strings.Contains(output, "rule") {
		t.Error("Rule log missing 'rule' type field")
	}
}

func TestLogHelper_Sync(t *testing.T) {
	helper, buf := createTestLogger()

	helper.Sync("sync disabled", "integration_id", "42")

	output := buf.String()
	if !strings.Contains(output, "sync") {
		t.Error("Sync log missing 'sync' type field")
	}
}

func TestLogHelper_Credential(t *testing.T) {
	helper, buf := createTestLogger()

	helper.Credential("token refreshed", "integration_id", "42")

	output := buf.String()
	if !strings.Contains(output, "credential") {
		t.Error("Credential log missing 'credential' type field")
	}
}

func TestLogHelper_Database(t *testing.T) {
	helper, buf := createTestLogger()

	helper.Database("query executed", "table", "orders")

	output := buf.String()
	if output == "" {
		t.Error("Database log produced no output")
	}

	if !strings.Contains(output, "database") {
		t.Error("Database log missing 'database' type field")
	}
}

func TestLogHelper_Redis(t *testing.T) {
	helper, buf := createTestLogger()

	helper.Redis("cache hit", "key", "integration:123")

	output := buf.String()
	if output == "" {
		t.Error("Redis log produced no output")
	}

	if !strings.Contains(output, "redis") {
		t.Error("Redis log missing 'redis' type field")
	}
}

func TestLogHelper_SlowRequest(t *testing.T) {
	helper, buf := createTestLogger()

	ctx := WithRequestContext(context.Background(), "req123abc0", "admin")
	helper.SlowRequest(ctx, "GET", "/v1/orders", 2500, 1000)

	output := buf.String()
	if output == "" {
		t.Error("SlowRequest log produced no output")
	}

	if !strings.Contains(output, "req123abc0") {
		t.Error("SlowRequest log missing request ID")
	}
	if !strings.Contains(output, "slow_request") {
		t.Error("SlowRequest log missing 'slow_request' type field")
	}
}

func TestLogHelper_RequestWithContext(t *testing.T) {
	helper, buf := createTestLogger()

	ctx := WithRequestContext(context.Background(), "abcdef1234", "admin")
	helper.RequestWithContext(ctx, "POST", "/v1/events", 200, 120)

	output := buf.String()
	if !strings.Contains(output, "abcdef1234") {
		t.Error("RequestWithContext log missing request ID")
	}
	if !strings.Contains(output, "admin") {
		t.Error("RequestWithContext log missing operator")
	}
	if strings.Contains(output, "slow_request") {
		t.Error("fast request should not be flagged as slow")
	}
}

func TestLogHelper_RequestWithContext_Slow(t *testing.T) {
	helper, buf := createTestLogger()

	ctx := WithRequestContext(context.Background(), "abcdef1234", "")
	helper.RequestWithContext(ctx, "GET", "/v1/integrations", 200, 1500)

	output := buf.String()
	if !strings.Contains(output, "slow_request") {
		t.Error("request above threshold should emit a slow_request entry")
	}
}

func TestLogHelper_AllTypes(t *testing.T) {
	// Every helper method must be callable without panicking.
	helper, _ := createTestLogger()

	helper.Audit("operator action")
	helper.Startup("service started")
	helper.Scheduler("health sweep completed")
	helper.Security("invalid admin token")
}

// TestMain sets up the test environment
func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}
