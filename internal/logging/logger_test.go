package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig = Config{}
	isInitialized = false
	logBuffer = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"ingest": "debug",
			"api":    "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"ingest", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	before := GetLogger("ingest")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"ingest": "debug"},
	})

	after := GetLogger("ingest")
	if before != after {
		t.Error("module logger not cached across Initialize")
	}
	if !after.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("cached logger did not pick up the debug override")
	}
}

func TestMultiHandlerWritesOncePerHandler(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(NewMultiHandler(debugHandler, infoHandler))

	logger.Debug("debug only message")

	if got := strings.Count(buf.String(), "debug only message"); got != 1 {
		t.Errorf("debug message written %d times, want 1 (info handler must skip it)", got)
	}
}

func TestBufferHandlerCapturesEntries(t *testing.T) {
	buffer := NewRingBuffer(10)
	levelVar := &slog.LevelVar{}
	logger := slog.New(NewBufferHandler(buffer, levelVar)).With("module", "ingest")

	logger.Info("Worker started", "stream", "cam1")
	logger.Error("Write failed", "error", context.DeadlineExceeded)

	entries := buffer.ReadAll()
	if len(entries) != 2 {
		t.Fatalf("buffered entries = %d, want 2", len(entries))
	}
	if entries[0].Module != "ingest" {
		t.Errorf("entry module = %q, want ingest", entries[0].Module)
	}
	if entries[0].Attributes["stream"] != "cam1" {
		t.Errorf("entry attributes = %v, missing stream=cam1", entries[0].Attributes)
	}
	if entries[1].Level != "error" {
		t.Errorf("entry level = %q, want error", entries[1].Level)
	}
	if entries[1].Attributes["error"] != context.DeadlineExceeded.Error() {
		t.Errorf("error attribute = %v, want flattened message", entries[1].Attributes["error"])
	}
}

func TestRingBufferWrapsAndReadsRecent(t *testing.T) {
	buffer := NewRingBuffer(3)
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		buffer.Write(Entry{Timestamp: base.Add(time.Duration(i) * time.Second), Message: string(rune('a' + i))})
	}

	all := buffer.ReadAll()
	if len(all) != 3 {
		t.Fatalf("ReadAll() len = %d, want 3", len(all))
	}
	if all[0].Message != "c" || all[2].Message != "e" {
		t.Errorf("ReadAll() order = [%s %s %s], want [c d e]", all[0].Message, all[1].Message, all[2].Message)
	}

	recent := buffer.ReadRecent(2)
	if len(recent) != 2 || recent[0].Message != "d" {
		t.Errorf("ReadRecent(2) = %v, want newest two in order", recent)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
