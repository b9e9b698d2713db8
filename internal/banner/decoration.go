package banner

import (
	"math"
	"strconv"
	"strings"
)

// Display is the resolved presentation of a banner.
type Display struct {
	Height       int    `json:"height"`
	YPosition    int    `json:"y_position"`
	XPosition    int    `json:"x_position"`
	Fade         int    `json:"fade"`
	ContentStart int    `json:"content_start"`
	Mode         string `json:"mode"`
	Repeat       bool   `json:"repeat"`
}

// Decoration is the icon drawn over a banner.
type Decoration struct {
	Glyph          string `json:"glyph"`
	Size           int    `json:"size"`
	XPosition      int    `json:"x_position"`
	Opacity        int    `json:"opacity"`
	Color          string `json:"color,omitempty"`
	Background     string `json:"background,omitempty"`
	BorderRadius   int    `json:"border_radius"`
	VerticalOffset int    `json:"vertical_offset"`
}

// deriveDisplay layers frontmatter over the folder override over settings.
func deriveDisplay(fm map[string]any, o *FolderOverride, s *Settings) Display {
	d := Display{
		Height:       s.Display.Height,
		YPosition:    s.Display.YPosition,
		XPosition:    s.Display.XPosition,
		Fade:         s.Display.Fade,
		ContentStart: s.Display.ContentStart,
		Mode:         s.Display.Mode,
		Repeat:       s.Display.Repeat,
	}
	if o != nil {
		setInt(&d.Height, o.Height)
		setInt(&d.YPosition, o.YPosition)
		setInt(&d.XPosition, o.XPosition)
		setInt(&d.Fade, o.Fade)
		setInt(&d.ContentStart, o.ContentStart)
		if o.Mode != nil {
			d.Mode = *o.Mode
		}
		if o.Repeat != nil {
			d.Repeat = *o.Repeat
		}
	}
	fmInt(fm, FieldHeight, &d.Height)
	fmInt(fm, FieldYPosition, &d.YPosition)
	fmInt(fm, FieldXPosition, &d.XPosition)
	fmInt(fm, FieldFade, &d.Fade)
	fmInt(fm, FieldContentStart, &d.ContentStart)
	if m, ok := fm[FieldDisplay].(string); ok {
		switch m = strings.ToLower(strings.TrimSpace(m)); m {
		case DisplayCover, DisplayContain, DisplayAuto:
			d.Mode = m
		}
	}
	if b, ok := toBool(fm[FieldRepeat]); ok {
		d.Repeat = b
	}
	d.YPosition = clamp(d.YPosition, 0, 100)
	d.XPosition = clamp(d.XPosition, 0, 100)
	return d
}

// deriveDecoration returns nil when the note has no icon glyph.
func deriveDecoration(fm map[string]any, o *FolderOverride, s *Settings) *Decoration {
	glyph, _ := fm[s.IconField].(string)
	if glyph = strings.TrimSpace(glyph); glyph == "" {
		return nil
	}
	d := &Decoration{
		Glyph:          glyph,
		Size:           s.Icon.Size,
		XPosition:      s.Icon.XPosition,
		Opacity:        s.Icon.Opacity,
		Color:          s.Icon.Color,
		Background:     s.Icon.Background,
		BorderRadius:   s.Icon.BorderRadius,
		VerticalOffset: s.Icon.VerticalOffset,
	}
	if o != nil {
		setInt(&d.Size, o.IconSize)
		setInt(&d.XPosition, o.IconXPosition)
		setInt(&d.Opacity, o.IconOpacity)
		setInt(&d.BorderRadius, o.IconBorderRadius)
		setInt(&d.VerticalOffset, o.IconVerticalOffset)
		if o.IconColor != nil {
			d.Color = *o.IconColor
		}
		if o.IconBackground != nil {
			d.Background = *o.IconBackground
		}
	}
	fmInt(fm, FieldIconSize, &d.Size)
	fmInt(fm, FieldIconXPosition, &d.XPosition)
	fmInt(fm, FieldIconOpacity, &d.Opacity)
	fmInt(fm, FieldIconBorderRadius, &d.BorderRadius)
	fmInt(fm, FieldIconVerticalOffset, &d.VerticalOffset)
	if c, ok := fm[FieldIconColor].(string); ok && c != "" {
		d.Color = c
	}
	if c, ok := fm[FieldIconBackground].(string); ok && c != "" {
		d.Background = c
	}
	d.Opacity = clamp(d.Opacity, 0, 100)
	return d
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func fmInt(fm map[string]any, key string, dst *int) {
	if n, ok := toInt(fm[key]); ok {
		*dst = n
	}
}

// toInt accepts YAML ints, JSON floats and strings such as "40", "40%" or "300px".
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(math.Round(x)), true
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimSuffix(strings.TrimSuffix(s, "px"), "%")
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return toInt(f)
		}
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	return false, false
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
