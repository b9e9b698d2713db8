package banner

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Display modes for the banner image.
const (
	DisplayCover   = "cover"
	DisplayContain = "contain"
	DisplayAuto    = "auto"
)

// Frontmatter keys read besides the configurable banner, shuffle and icon fields.
const (
	FieldYPosition          = "banner-y"
	FieldXPosition          = "banner-x"
	FieldHeight             = "banner-height"
	FieldFade               = "banner-fade"
	FieldContentStart       = "content-start"
	FieldDisplay            = "banner-display"
	FieldRepeat             = "banner-repeat"
	FieldIconSize           = "icon-size"
	FieldIconXPosition      = "icon-x"
	FieldIconOpacity        = "icon-opacity"
	FieldIconColor          = "icon-color"
	FieldIconBackground     = "icon-bg-color"
	FieldIconBorderRadius   = "icon-border-radius"
	FieldIconVerticalOffset = "icon-vertical-offset"
)

var styleFields = []string{
	FieldYPosition, FieldXPosition, FieldHeight, FieldFade, FieldContentStart,
	FieldDisplay, FieldRepeat, FieldIconSize, FieldIconXPosition, FieldIconOpacity,
	FieldIconColor, FieldIconBackground, FieldIconBorderRadius, FieldIconVerticalOffset,
}

// Settings is the global banner configuration.
type Settings struct {
	// Fields are the frontmatter keys that name a banner, checked in order.
	Fields []string `yaml:"fields"`
	// ShuffleField names a folder to pick a random banner from.
	ShuffleField string `yaml:"shuffle_field"`
	// IconField holds the emoji/glyph shown over the banner.
	IconField string `yaml:"icon_field"`

	Display DisplaySettings  `yaml:"display"`
	Icon    IconSettings     `yaml:"icon"`
	Folders []FolderOverride `yaml:"folders"`

	// DefaultKeywords is the fallback pool used when a keyword search fails.
	DefaultKeywords []string `yaml:"default_keywords"`
	// MaxAttempts bounds keyword searches per acquisition, fallbacks included.
	MaxAttempts int `yaml:"max_attempts"`

	Cache CacheSettings `yaml:"cache"`

	// Debounce coalesces layout and metadata events.
	Debounce time.Duration `yaml:"debounce"`
	// PinFolder receives downloaded banners when a banner is pinned.
	PinFolder string `yaml:"pin_folder"`
}

// DisplaySettings are the global banner display defaults.
type DisplaySettings struct {
	Height       int    `yaml:"height"`
	YPosition    int    `yaml:"y_position"`
	XPosition    int    `yaml:"x_position"`
	Fade         int    `yaml:"fade"`
	ContentStart int    `yaml:"content_start"`
	Mode         string `yaml:"mode"`
	Repeat       bool   `yaml:"repeat"`
}

// IconSettings are the global icon style defaults.
type IconSettings struct {
	Size           int    `yaml:"size"`
	XPosition      int    `yaml:"x_position"`
	Opacity        int    `yaml:"opacity"`
	Color          string `yaml:"color"`
	Background     string `yaml:"background"`
	BorderRadius   int    `yaml:"border_radius"`
	VerticalOffset int    `yaml:"vertical_offset"`
}

// CacheSettings bound the per-view state cache.
type CacheSettings struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
	ShuffleTTL time.Duration `yaml:"shuffle_ttl"`
}

// FolderOverride customises banners for the notes of one folder.
// Unset pointer fields fall through to the global settings.
type FolderOverride struct {
	Folder             string `yaml:"folder"`
	DirectChildrenOnly bool   `yaml:"direct_children_only"`
	Image              string `yaml:"image"`
	EnableShuffle      bool   `yaml:"enable_shuffle"`
	ShuffleFolder      string `yaml:"shuffle_folder"`

	Height       *int    `yaml:"height"`
	YPosition    *int    `yaml:"y_position"`
	XPosition    *int    `yaml:"x_position"`
	Fade         *int    `yaml:"fade"`
	ContentStart *int    `yaml:"content_start"`
	Mode         *string `yaml:"mode"`
	Repeat       *bool   `yaml:"repeat"`

	IconSize           *int    `yaml:"icon_size"`
	IconXPosition      *int    `yaml:"icon_x_position"`
	IconOpacity        *int    `yaml:"icon_opacity"`
	IconColor          *string `yaml:"icon_color"`
	IconBackground     *string `yaml:"icon_background"`
	IconBorderRadius   *int    `yaml:"icon_border_radius"`
	IconVerticalOffset *int    `yaml:"icon_vertical_offset"`
}

// Validate validates a folder override.
func (f *FolderOverride) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.ShuffleFolder, validation.When(f.EnableShuffle, validation.Required)),
		validation.Field(&f.Mode, validation.NilOrNotEmpty, validation.In(DisplayCover, DisplayContain, DisplayAuto)),
		validation.Field(&f.IconOpacity, validation.Min(0), validation.Max(100)),
		validation.Field(&f.YPosition, validation.Min(0), validation.Max(100)),
		validation.Field(&f.XPosition, validation.Min(0), validation.Max(100)),
	)
}

// Validate validates the global settings. Folder overrides are checked
// separately by ValidFolders so that one bad entry never blocks startup.
func (s *Settings) Validate() error {
	if err := validation.ValidateStruct(s,
		validation.Field(&s.Fields, validation.Required, validation.Each(validation.Required)),
		validation.Field(&s.MaxAttempts, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&s.PinFolder, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&s.Display,
		validation.Field(&s.Display.Mode, validation.Required, validation.In(DisplayCover, DisplayContain, DisplayAuto)),
		validation.Field(&s.Display.Height, validation.Min(0)),
		validation.Field(&s.Display.YPosition, validation.Min(0), validation.Max(100)),
		validation.Field(&s.Display.XPosition, validation.Min(0), validation.Max(100)),
	); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	if err := validation.ValidateStruct(&s.Icon,
		validation.Field(&s.Icon.Opacity, validation.Min(0), validation.Max(100)),
		validation.Field(&s.Icon.Size, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("icon: %w", err)
	}
	return validation.ValidateStruct(&s.Cache,
		validation.Field(&s.Cache.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&s.Cache.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&s.Cache.ShuffleTTL, validation.Required, validation.Min(time.Millisecond)),
	)
}

// ValidFolders returns the folder overrides that pass validation. Invalid
// entries are dropped with a debug log line.
func (s *Settings) ValidFolders(logger *slog.Logger) []FolderOverride {
	out := make([]FolderOverride, 0, len(s.Folders))
	for i := range s.Folders {
		f := s.Folders[i]
		if err := f.Validate(); err != nil {
			logger.Debug("banner: skipping folder override",
				slog.String("folder", f.Folder),
				slog.String("error", err.Error()))
			continue
		}
		f.Folder = strings.Trim(f.Folder, "/")
		f.ShuffleFolder = strings.Trim(f.ShuffleFolder, "/")
		out = append(out, f)
	}
	return out
}

// RecognizedFields returns every frontmatter key that influences a banner.
func (s *Settings) RecognizedFields() []string {
	out := make([]string, 0, len(s.Fields)+len(styleFields)+2)
	out = append(out, s.Fields...)
	if s.ShuffleField != "" {
		out = append(out, s.ShuffleField)
	}
	if s.IconField != "" {
		out = append(out, s.IconField)
	}
	return append(out, styleFields...)
}

// DefaultSettings returns the settings used when the config file omits them.
func DefaultSettings() Settings {
	return Settings{
		Fields:       []string{"banner"},
		ShuffleField: "banner-shuffle",
		IconField:    "icon",
		Display: DisplaySettings{
			Height:       350,
			YPosition:    50,
			XPosition:    50,
			Fade:         -75,
			ContentStart: 355,
			Mode:         DisplayCover,
		},
		Icon: IconSettings{
			Size:           70,
			XPosition:      25,
			Opacity:        100,
			BorderRadius:   17,
			VerticalOffset: 0,
		},
		DefaultKeywords: []string{"nature", "landscape", "mountains", "ocean", "forest", "sky", "abstract"},
		MaxAttempts:     4,
		Cache: CacheSettings{
			MaxEntries: 30,
			TTL:        30 * time.Minute,
			ShuffleTTL: 5 * time.Second,
		},
		Debounce:  150 * time.Millisecond,
		PinFolder: "banners",
	}
}
