package hydrate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type machineMetadata struct {
	Type        string        `mapstructure:"type"`
	Weight      int           `mapstructure:"weight"`
	Visible     bool          `mapstructure:"visible"`
	Extruders   []string      `mapstructure:"extruders"`
	HeatUpDelay time.Duration `mapstructure:"heat_up_delay"`
}

func TestDecoderWeaklyTyped(t *testing.T) {
	cases := []struct {
		name   string
		input  map[string]any
		opts   []DecoderOption[machineMetadata]
		expect machineMetadata
		errMsg string
	}{
		{
			name: "ini strings",
			input: map[string]any{
				"type":          "machine",
				"weight":        "-2",
				"visible":       "true",
				"extruders":     "left,right",
				"heat_up_delay": "1500ms",
			},
			expect: machineMetadata{
				Type:        "machine",
				Weight:      -2,
				Visible:     true,
				Extruders:   []string{"left", "right"},
				HeatUpDelay: 1500 * time.Millisecond,
			},
		},
		{
			name:   "native values",
			input:  map[string]any{"type": "quality", "weight": 3, "visible": false},
			expect: machineMetadata{Type: "quality", Weight: 3},
		},
		{
			name:   "nil metadata",
			input:  nil,
			expect: machineMetadata{},
		},
		{
			name:   "unused keys rejected when strict",
			input:  map[string]any{"type": "machine", "author": "fred"},
			opts:   []DecoderOption[machineMetadata]{WithErrorUnused[machineMetadata]()},
			errMsg: "author",
		},
		{
			name:  "pre hook normalises",
			input: map[string]any{"kind": "variant"},
			opts: []DecoderOption[machineMetadata]{WithPreHook[machineMetadata](func(_ Context, m map[string]any) (map[string]any, error) {
				m["type"] = m["kind"]
				return m, nil
			})},
			expect: machineMetadata{Type: "variant"},
		},
		{
			name:  "post hook fails",
			input: map[string]any{"weight": "1"},
			opts: []DecoderOption[machineMetadata]{WithPostHook[machineMetadata](func(ctx Context, m *machineMetadata) error {
				if m.Type == "" {
					return errors.New("type required for " + ctx.ContainerID)
				}
				return nil
			})},
			errMsg: "type required for printer",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoder := NewDecoder[machineMetadata](tc.opts...)
			got, err := decoder.Decode(Context{ContainerID: "printer", Kind: "instance"}, tc.input)
			if tc.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
					t.Fatalf("expected error containing %q, got %v", tc.errMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if diff := cmp.Diff(tc.expect, got); diff != "" {
				t.Fatalf("decoded metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"kind": "machine"}
	decoder := NewDecoder[machineMetadata](WithPreHook[machineMetadata](func(_ Context, m map[string]any) (map[string]any, error) {
		m["type"] = m["kind"]
		delete(m, "kind")
		return m, nil
	}))
	if _, err := decoder.Decode(Context{}, input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := input["kind"]; !ok {
		t.Fatalf("input was modified: %#v", input)
	}
}

func TestDecodeHelper(t *testing.T) {
	var out struct {
		Weight int `mapstructure:"weight"`
	}
	if err := Decode(map[string]any{"weight": "7"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Weight != 7 {
		t.Fatalf("expected weight 7, got %d", out.Weight)
	}
}
