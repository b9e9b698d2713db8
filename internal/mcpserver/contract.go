package mcpserver

// BannerContract describes the frontmatter keys that control note banners.
const BannerContract = `# Banner Frontmatter Contract

A note shows a banner when its YAML frontmatter names one.

## Banner value (` + "`" + `banner` + "`" + `)

| Form | Example | Meaning |
|---|---|---|
| URL | ` + "`" + `https://images.example.com/sea.jpg` + "`" + ` | used as is |
| Vault path | ` + "`" + `banners/sea.jpg` + "`" + ` | an image file in the vault |
| Internal link | ` + "`" + `"[[sea.jpg]]"` + "`" + ` | resolved like any wikilink (quote it in YAML) |
| Keywords | ` + "`" + `ocean, forest` + "`" + ` | one keyword is picked at random and searched on an image provider |
| List | ` + "`" + `[[sea.jpg]]` + "`" + ` (YAML flow list) | the first element is used |

A comma-separated list of vault paths or URLs picks one member at random on
every resolution.

## Shuffle

` + "`" + `banner-shuffle: banners/summer` + "`" + ` picks a random image from the folder
(direct children only). It wins over ` + "`" + `banner` + "`" + `.

## Presentation keys

- ` + "`" + `banner-y` + "`" + `, ` + "`" + `banner-x` + "`" + `: focal point, 0-100.
- ` + "`" + `banner-height` + "`" + `, ` + "`" + `content-start` + "`" + `, ` + "`" + `banner-fade` + "`" + `: pixels.
- ` + "`" + `banner-display` + "`" + `: cover, contain or auto. ` + "`" + `banner-repeat` + "`" + `: true/false.
- ` + "`" + `icon` + "`" + `: an emoji or short text drawn over the banner, styled with
  ` + "`" + `icon-size` + "`" + `, ` + "`" + `icon-x` + "`" + `, ` + "`" + `icon-opacity` + "`" + `, ` + "`" + `icon-color` + "`" + `,
  ` + "`" + `icon-bg-color` + "`" + `, ` + "`" + `icon-border-radius` + "`" + `, ` + "`" + `icon-vertical-offset` + "`" + `.

Frontmatter wins over folder defaults, which win over global settings.

## Tools

- Use ` + "`" + `classify_banner_input` + "`" + ` to check how a value will be read.
- Use ` + "`" + `import_banner_image` + "`" + ` to store a remote image in the vault, then
  ` + "`" + `set_banner` + "`" + ` with ` + "`" + `[[<saved path>]]` + "`" + `.
`
