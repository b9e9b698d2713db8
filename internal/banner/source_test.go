package banner

import (
	"testing"
)

func TestClassify(t *testing.T) {
	vault := newFakeVault("assets/pic.png", "notes/readme.md")

	tests := []struct {
		name  string
		input any
		want  InputType
	}{
		{"https url", "https://example.com/a.jpg", InputURL},
		{"data uri", "data:image/png;base64,AAAA", InputURL},
		{"bracketed link", "[[pic.png]]", InputInternalLink},
		{"quoted link", `"[[pic.png]]"`, InputInternalLink},
		{"embed marker", "![[pic.png]]", InputInternalLink},
		{"quoted embed", `'![[assets/pic.png|300]]'`, InputInternalLink},
		{"existing image", "assets/pic.png", InputVaultPath},
		{"existing non-image", "notes/readme.md", InputKeyword},
		{"keyword", "mountains", InputKeyword},
		{"keyword with spaces", "sunset over water", InputKeyword},
		{"array of path", []any{"assets/pic.png"}, InputVaultPath},
		{"nested array", []any{[]any{"https://x.example/a.png"}}, InputURL},
		{"empty array", []any{}, InputInvalid},
		{"empty string", "", InputInvalid},
		{"blank string", "   ", InputInvalid},
		{"number", 42, InputInvalid},
		{"bool", true, InputInvalid},
		{"nil", nil, InputInvalid},
		{"map", map[string]any{"a": 1}, InputInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.input, vault); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func newTestResolver(vault *fakeVault, r Rand) *Resolver {
	s := testSettings()
	return NewResolver(&s, vault, r, quietLogger())
}

func TestResolve_CommaListPicksMember(t *testing.T) {
	r := newTestResolver(newFakeVault(), nil)
	fm := map[string]any{"banner": "a, b ,  c"}
	allowed := map[string]bool{"a": true, "b": true, "c": true}

	for i := 0; i < 200; i++ {
		src := r.Resolve("note.md", fm, nil)
		if src == nil {
			t.Fatal("expected a source")
		}
		if src.Kind != InputKeyword || !allowed[src.Value] {
			t.Fatalf("resolved %+v, want one of a, b, c", src)
		}
	}
}

func TestResolve_CommaListIsFair(t *testing.T) {
	r := newTestResolver(newFakeVault(), nil)
	fm := map[string]any{"banner": "ocean, forest"}
	seen := map[string]int{}
	for i := 0; i < 50; i++ {
		seen[r.Resolve("note.md", fm, nil).Value]++
	}
	if seen["ocean"] == 0 || seen["forest"] == 0 {
		t.Errorf("50 trials picked %v, want both candidates", seen)
	}
}

func TestResolve_CommaListUsesRand(t *testing.T) {
	r := newTestResolver(newFakeVault(), &seqRand{vals: []int{1}})
	src := r.Resolve("note.md", map[string]any{"banner": "ocean, forest"}, nil)
	if src.Value != "forest" {
		t.Errorf("Value = %q, want forest", src.Value)
	}
}

func TestResolve_ArrayBecomesLink(t *testing.T) {
	r := newTestResolver(newFakeVault("assets/pic.png"), nil)

	for _, raw := range []any{
		[]any{"assets/pic.png"},
		[]any{[]any{"assets/pic.png"}},
	} {
		src := r.Resolve("note.md", map[string]any{"banner": raw}, nil)
		if src == nil || src.Kind != InputInternalLink || src.Value != "[[assets/pic.png]]" {
			t.Errorf("Resolve(%v) = %+v, want internal link", raw, src)
		}
	}
}

func TestResolve_ExistingPathBecomesLink(t *testing.T) {
	r := newTestResolver(newFakeVault("assets/pic.png"), nil)
	src := r.Resolve("note.md", map[string]any{"banner": "assets/pic.png"}, nil)
	if src == nil || src.Kind != InputInternalLink || src.Value != "[[assets/pic.png]]" {
		t.Errorf("got %+v", src)
	}
}

func TestResolve_LinkIsNotSplit(t *testing.T) {
	r := newTestResolver(newFakeVault(), &seqRand{vals: []int{1}})
	src := r.Resolve("note.md", map[string]any{"banner": "[[a, b.png]]"}, nil)
	if src == nil || src.Value != "[[a, b.png]]" {
		t.Errorf("got %+v", src)
	}
}

func TestResolve_NoBanner(t *testing.T) {
	r := newTestResolver(newFakeVault(), nil)
	for _, fm := range []map[string]any{
		nil,
		{"title": "x"},
		{"banner": " , ,  "},
		{"banner": 42},
		{"banner": ""},
	} {
		if src := r.Resolve("note.md", fm, nil); src != nil {
			t.Errorf("Resolve(%v) = %+v, want nil", fm, src)
		}
	}
}

func TestResolve_URL(t *testing.T) {
	r := newTestResolver(newFakeVault(), nil)
	src := r.Resolve("note.md", map[string]any{"banner": "https://example.com/a.jpg"}, nil)
	if src == nil || src.Kind != InputURL || src.Value != "https://example.com/a.jpg" {
		t.Errorf("got %+v", src)
	}
}

func TestResolve_SecondField(t *testing.T) {
	s := testSettings()
	s.Fields = []string{"banner", "cover"}
	r := NewResolver(&s, newFakeVault(), nil, quietLogger())
	src := r.Resolve("note.md", map[string]any{"cover": "forest"}, nil)
	if src == nil || src.Value != "forest" {
		t.Errorf("got %+v", src)
	}
}

func TestResolve_Precedence(t *testing.T) {
	vault := newFakeVault("assets/fixed.png", "shuffle/a.png", "override/o.png")
	r := newTestResolver(vault, &seqRand{vals: []int{0}})
	override := &FolderOverride{
		Folder:        "trips",
		Image:         "assets/fixed.png",
		EnableShuffle: true,
		ShuffleFolder: "override",
	}

	tests := []struct {
		name     string
		fm       map[string]any
		override *FolderOverride
		want     Source
	}{
		{
			"frontmatter shuffle first",
			map[string]any{"banner-shuffle": "shuffle", "banner": "mountains"},
			override,
			Source{Kind: InputVaultPath, Value: "shuffle/a.png"},
		},
		{
			"frontmatter banner over override",
			map[string]any{"banner": "mountains"},
			override,
			Source{Kind: InputKeyword, Value: "mountains"},
		},
		{
			"override shuffle over override image",
			nil,
			override,
			Source{Kind: InputVaultPath, Value: "override/o.png"},
		},
		{
			"override image",
			nil,
			&FolderOverride{Folder: "trips", Image: "assets/fixed.png"},
			Source{Kind: InputInternalLink, Value: "[[assets/fixed.png]]"},
		},
		{
			"empty shuffle folder falls through",
			map[string]any{"banner-shuffle": "missing", "banner": "mountains"},
			nil,
			Source{Kind: InputKeyword, Value: "mountains"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve("trips/day.md", tt.fm, tt.override)
			if got == nil || *got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLinkTarget(t *testing.T) {
	tests := map[string]string{
		"[[pic.png]]":             "pic.png",
		"![[assets/pic.png|200]]": "assets/pic.png",
		`"[[note#heading]]"`:      "note",
	}
	for in, want := range tests {
		if got := linkTarget(in); got != want {
			t.Errorf("linkTarget(%q) = %q, want %q", in, got, want)
		}
	}
}
