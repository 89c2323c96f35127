package settings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDescribeDefinitions(t *testing.T) {
	dc := loadDefinition(t, "children", "children.yaml")

	want := []FieldDescriptor{
		{Path: "shell", Key: "shell", Type: "category", Label: "Shell"},
		{Path: "shell.wall_thickness", Key: "wall_thickness", Type: "float", Label: "Wall Thickness", Default: 0.8},
		{Path: "shell.wall_thickness.wall_line_count", Key: "wall_line_count", Type: "int", Label: "Wall Line Count", Default: 2, Formula: "wall_thickness / 0.4"},
		{Path: "shell.top_bottom_thickness", Key: "top_bottom_thickness", Type: "float", Label: "Top/Bottom Thickness", Default: 0.6},
	}
	if diff := cmp.Diff(want, DescribeDefinitions(dc)); diff != "" {
		t.Fatalf("unexpected descriptors (-want +got):\n%s", diff)
	}

	if got := DescribeDefinitions(NewDefinitionContainer("empty")); len(got) != 0 {
		t.Fatalf("expected no descriptors, got %v", got)
	}
	if DescribeDefinitions(nil) != nil {
		t.Fatalf("nil containers describe nothing")
	}
}
