package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestWithComponentEmitsField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("keystore")
	logger.Info().Str("tenant_id", "acme").Msg("stored tenant key")

	out := buf.String()
	for _, want := range []string{`"component":"keystore"`, `"tenant_id":"acme"`, "stored tenant key"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestWithWorkerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger := WithWorker("acme", 5001)
	logger.Warn().Msg("graceful stop timed out, forcing")

	out := buf.String()
	if !strings.Contains(out, `"tenant_id":"acme"`) || !strings.Contains(out, `"port":5001`) {
		t.Errorf("log line %q missing worker fields", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("quiet")
	logger.Info().Msg("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info line emitted at warn level: %q", buf.String())
	}

	logger.Warn().Msg("emitted")
	if !strings.Contains(buf.String(), "emitted") {
		t.Error("warn line missing at warn level")
	}
}
