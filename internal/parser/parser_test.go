package parser

import (
	"strings"
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\nbanner: \"ocean, forest\"\nbanner-y: 40\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter["banner"] != "ocean, forest" {
		t.Errorf("banner = %v", r.Frontmatter["banner"])
	}
	if r.Frontmatter["banner-y"] != 40 {
		t.Errorf("banner-y = %v (%T)", r.Frontmatter["banner-y"], r.Frontmatter["banner-y"])
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_UnquotedWikilinkIsNestedArray(t *testing.T) {
	// YAML reads an unquoted [[x]] as a list containing a list.
	r, err := Parse([]byte("---\nbanner: [[assets/pic.png]]\n---\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outer, ok := r.Frontmatter["banner"].([]any)
	if !ok || len(outer) != 1 {
		t.Fatalf("banner = %#v", r.Frontmatter["banner"])
	}
	inner, ok := outer[0].([]any)
	if !ok || len(inner) != 1 || inner[0] != "assets/pic.png" {
		t.Fatalf("inner = %#v", outer[0])
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestSetFields_UpdatesAndPreservesOrder(t *testing.T) {
	input := []byte("---\ntitle: Trip\nbanner: old.png\ntags:\n  - travel\n---\n# Trip\n\nbody\n")
	out, err := SetFields(input, map[string]any{"banner": "[[assets/pic.png]]", "icon": "🌊"})
	if err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	s := string(out)
	if !strings.HasSuffix(s, "---\n# Trip\n\nbody\n") {
		t.Errorf("body not preserved: %q", s)
	}
	if strings.Index(s, "title:") > strings.Index(s, "banner:") {
		t.Errorf("key order changed: %q", s)
	}

	r, _ := Parse(out)
	if r.Frontmatter["banner"] != "[[assets/pic.png]]" {
		t.Errorf("banner = %v", r.Frontmatter["banner"])
	}
	if r.Frontmatter["icon"] != "🌊" {
		t.Errorf("icon = %v", r.Frontmatter["icon"])
	}
	if tags, ok := r.Frontmatter["tags"].([]any); !ok || len(tags) != 1 {
		t.Errorf("tags lost: %v", r.Frontmatter["tags"])
	}
}

func TestSetFields_DeleteKey(t *testing.T) {
	out, err := SetFields([]byte("---\nbanner: x\nicon: y\n---\nbody\n"), map[string]any{"icon": nil})
	if err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	r, _ := Parse(out)
	if _, ok := r.Frontmatter["icon"]; ok {
		t.Errorf("icon should be removed: %q", out)
	}
	if r.Frontmatter["banner"] != "x" {
		t.Errorf("banner = %v", r.Frontmatter["banner"])
	}
}

func TestSetFields_DeletingLastKeyDropsBlock(t *testing.T) {
	out, err := SetFields([]byte("---\nbanner: x\n---\nbody\n"), map[string]any{"banner": nil})
	if err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	if string(out) != "body\n" {
		t.Errorf("out = %q", out)
	}
}

func TestSetFields_NoExistingFrontmatter(t *testing.T) {
	out, err := SetFields([]byte("# Note\n"), map[string]any{"banner": "mountains"})
	if err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	if string(out) != "---\nbanner: mountains\n---\n# Note\n" {
		t.Errorf("out = %q", out)
	}
}

func TestSetFields_InvalidFrontmatter(t *testing.T) {
	if _, err := SetFields([]byte("---\n: bad: {{\n---\n"), map[string]any{"banner": "x"}); err == nil {
		t.Error("expected error for invalid frontmatter")
	}
}
