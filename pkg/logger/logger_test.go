package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := InitWithOptions(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
	_ = Init()
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(WithFormat("json"), WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	Named("gateway").Info(context.Background(), "dispatched",
		String("query", "SELECT 1"),
		Int("rows", 3),
		Bool("cached", false),
		Duration("wait", 2*time.Second),
		Error(errors.New("boom")),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "dispatched" {
		t.Errorf("expected msg dispatched, got %v", record["msg"])
	}
	if record["component"] != "gateway" {
		t.Errorf("expected component gateway, got %v", record["component"])
	}
	if record["rows"] != float64(3) {
		t.Errorf("expected rows 3, got %v", record["rows"])
	}
	source, _ := record["source"].(string)
	if !strings.Contains(source, "logger_test.go") {
		t.Errorf("expected caller to point at the test file, got %q", source)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
	SetLevel(slog.LevelInfo)
}

func TestSetLevelString(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"", false},
		{"warning", false},
		{" error ", false},
		{"verbose", true},
	}
	for _, tc := range cases {
		err := SetLevelString(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("SetLevelString(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
	SetLevel(slog.LevelInfo)
}
