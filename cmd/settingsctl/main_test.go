package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	settings "github.com/goliatone/go-settings"
)

func resourcesDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate test file")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "testdata", "resources")
}

func TestRun(t *testing.T) {
	path := resourcesDir(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "resolve keys",
			args: []string{"--path", path, "--stack", "ultimaker_global", "-k", "layer_height", "-k", "infill_line_distance"},
			want: "layer_height = 0.25\ninfill_line_distance = 2\n",
		},
		{
			name: "other property",
			args: []string{"-p", path, "-s", "ultimaker_global", "-k", "layer_height", "--property", "unit"},
			want: "layer_height = mm\n",
		},
		{
			name: "evaluate",
			args: []string{"-p", path, "-s", "ultimaker_global", "--eval", "layer_height_0 > layer_height", "--program-cache", "0"},
			want: "True\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := run(tt.args, &stdout, &stderr); err != nil {
				t.Fatalf("run: %v (%s)", err, stderr.String())
			}
			if stdout.String() != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, stdout.String())
			}
		})
	}
}

func TestRunTraceAndList(t *testing.T) {
	path := resourcesDir(t)

	var stdout bytes.Buffer
	if err := run([]string{"-p", path, "-s", "ultimaker_global", "-k", "layer_height", "--trace"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("trace: %v", err)
	}
	trace, err := settings.TraceFromJSON(stdout.Bytes())
	if err != nil {
		t.Fatalf("decode trace: %v", err)
	}
	winner, ok := trace.WinningLevel()
	if !ok || winner.ContainerID != "ultimaker_user" {
		t.Fatalf("expected the user container to win, got %+v", winner)
	}

	stdout.Reset()
	if err := run([]string{"-p", path, "--list"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[0], "definition") || !strings.HasPrefix(lines[4], "stack") {
		t.Fatalf("unexpected listing:\n%s", stdout.String())
	}
}

func TestRunErrors(t *testing.T) {
	path := resourcesDir(t)
	if err := run([]string{"-p", path, "-k", "layer_height"}, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected --stack to be required")
	}
	if err := run([]string{"-p", path, "-s", "missing", "-k", "x"}, &bytes.Buffer{}, &bytes.Buffer{}); !errors.Is(err, settings.ErrContainerNotFound) {
		t.Fatalf("expected ErrContainerNotFound, got %v", err)
	}
	if err := run([]string{"-p", path, "-s", "ultimaker_global"}, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected --key or --eval to be required")
	}
	if err := run([]string{"--help"}, &bytes.Buffer{}, &bytes.Buffer{}); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected pflag.ErrHelp, got %v", err)
	}
}
