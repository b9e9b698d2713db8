package banner

import (
	"log/slog"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strings"
)

// InputType classifies a raw banner value.
type InputType string

const (
	InputURL          InputType = "url"
	InputVaultPath    InputType = "vaultPath"
	InputInternalLink InputType = "internalLink"
	InputKeyword      InputType = "keyword"
	InputInvalid      InputType = "invalid"
)

// Source says where a banner image comes from.
type Source struct {
	Kind  InputType `json:"kind"`
	Value string    `json:"value"`
}

// Rand is the source of every random pick. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

var linkPattern = regexp.MustCompile(`^\[\[[^\[\]]+\]\]$`)

// cleanInput strips whitespace, surrounding quotes and a leading "!" embed marker.
func cleanInput(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return strings.TrimSpace(strings.TrimPrefix(s, "!"))
}

func isLink(s string) bool {
	return linkPattern.MatchString(cleanInput(s))
}

// linkTarget returns the path part of a bracketed link, without alias or heading.
func linkTarget(s string) string {
	s = cleanInput(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "[["), "]]")
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func isAbsoluteURL(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "data", "blob":
		return true
	}
	return u.Host != ""
}

// flatten takes the first element of an array, one nesting level deep.
func flatten(v []any) any {
	if len(v) == 0 {
		return nil
	}
	first := v[0]
	if inner, ok := first.([]any); ok {
		if len(inner) == 0 {
			return nil
		}
		return inner[0]
	}
	return first
}

// Classify returns the input type of a raw frontmatter value. Arrays are
// classified by their flattened first element; anything that is neither a
// string nor an array is invalid.
func Classify(v any, vault ImageChecker) InputType {
	switch x := v.(type) {
	case []any:
		first := flatten(x)
		if _, nested := first.([]any); nested {
			return InputInvalid
		}
		return Classify(first, vault)
	case string:
		s := cleanInput(x)
		switch {
		case s == "":
			return InputInvalid
		case linkPattern.MatchString(s):
			return InputInternalLink
		case isAbsoluteURL(s):
			return InputURL
		case vault != nil && vault.ImageExists(s):
			return InputVaultPath
		default:
			return InputKeyword
		}
	default:
		return InputInvalid
	}
}

// Resolver turns a note's effective configuration into a Source.
type Resolver struct {
	settings *Settings
	vault    Vault
	rand     Rand
	logger   *slog.Logger
}

// NewResolver creates a Resolver. r may be nil for the global random source.
func NewResolver(settings *Settings, vault Vault, r Rand, logger *slog.Logger) *Resolver {
	if r == nil {
		r = globalRand{}
	}
	return &Resolver{settings: settings, vault: vault, rand: r, logger: logger}
}

// Resolve applies, in order: frontmatter shuffle folder, frontmatter banner
// fields, folder override shuffle, folder override image. It returns nil when
// nothing yields a usable banner.
func (r *Resolver) Resolve(notePath string, fm map[string]any, override *FolderOverride) *Source {
	if folder, ok := fm[r.settings.ShuffleField].(string); ok && strings.TrimSpace(folder) != "" {
		if src := r.shuffle(folder); src != nil {
			return src
		}
	}
	if raw, ok := r.bannerValue(fm); ok {
		if value := r.normalize(raw); value != "" {
			return r.classify(value)
		}
	}
	if override == nil {
		return nil
	}
	if override.EnableShuffle && override.ShuffleFolder != "" {
		if src := r.shuffle(override.ShuffleFolder); src != nil {
			return src
		}
	}
	if override.Image != "" {
		if value := r.normalize(override.Image); value != "" {
			return r.classify(value)
		}
	}
	return nil
}

// Shuffled reports whether banners for this note are re-randomized on revisit.
func (r *Resolver) Shuffled(fm map[string]any, override *FolderOverride) bool {
	if folder, ok := fm[r.settings.ShuffleField].(string); ok && strings.TrimSpace(folder) != "" {
		return true
	}
	return override != nil && override.EnableShuffle && override.ShuffleFolder != ""
}

func (r *Resolver) bannerValue(fm map[string]any) (any, bool) {
	for _, f := range r.settings.Fields {
		if v, ok := fm[f]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// normalize reduces a raw value to a single candidate string, or "".
func (r *Resolver) normalize(raw any) string {
	switch v := raw.(type) {
	case []any:
		s, ok := flatten(v).(string)
		s = strings.TrimSpace(s)
		if !ok || s == "" {
			return ""
		}
		if isLink(s) {
			return cleanInput(s)
		}
		return "[[" + s + "]]"
	case string:
		s := cleanInput(v)
		if s == "" || linkPattern.MatchString(s) || strings.HasPrefix(s, "data:") {
			return s
		}
		pick := r.pick(s)
		if pick == "" {
			return ""
		}
		if !isAbsoluteURL(pick) && r.vault.ImageExists(pick) {
			return "[[" + pick + "]]"
		}
		return pick
	default:
		return ""
	}
}

// pick returns one comma-separated candidate chosen uniformly at random.
func (r *Resolver) pick(s string) string {
	candidates := splitList(s)
	if len(candidates) == 0 {
		return ""
	}
	return candidates[r.rand.IntN(len(candidates))]
}

func (r *Resolver) classify(value string) *Source {
	kind := Classify(value, r.vault)
	if kind == InputInvalid {
		return nil
	}
	return &Source{Kind: kind, Value: cleanInput(value)}
}

func (r *Resolver) shuffle(folder string) *Source {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	images, err := r.vault.ListImages(folder)
	if err != nil {
		r.logger.Warn("banner: listing shuffle folder failed",
			slog.String("folder", folder),
			slog.String("error", err.Error()))
		return nil
	}
	if len(images) == 0 {
		r.logger.Debug("banner: shuffle folder has no images", slog.String("folder", folder))
		return nil
	}
	return &Source{Kind: InputVaultPath, Value: images[r.rand.IntN(len(images))]}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
