// Package catalog renders a filterable card grid from markdown pages that
// describe integrations.
package catalog

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/hupe1980/refinery/logging"
)

// Options configures loading and rendering.
type Options struct {
	// BasePath prefixes generated links and relative icons.
	BasePath string
	// DefaultIcon is used when a page declares no icon.
	DefaultIcon string
	// ID identifies the catalog instance in the generated markup.
	ID string
	// Logger receives warnings for pages that cannot be processed.
	Logger logging.Logger
}

// DefaultOptions returns the options used by the documentation site.
func DefaultOptions() Options {
	return Options{
		BasePath:    "/adk-docs",
		DefaultIcon: "/adk-docs/integrations/assets/toolbox.svg",
		ID:          "catalog-integrations",
		Logger:      logging.NoOpLogger{},
	}
}

// Entry is one card.
type Entry struct {
	Title       string
	Description string
	Icon        string
	Link        string
	Tags        []string
	Source      string
}

// Load reads every file in fsys matching pattern, in lexical order, and
// builds its card. index.md pages are skipped. Pages that fail to parse are
// logged and skipped.
func Load(fsys fs.FS, pattern string, opts Options) ([]Entry, error) {
	opts = withDefaults(opts)

	files, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("catalog: glob %q: %w", pattern, err)
	}
	sort.Strings(files)

	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		if path.Base(file) == "index.md" {
			continue
		}
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			opts.Logger.Warn("Error processing catalog page", "file", file, "error", err.Error())
			continue
		}
		entry, err := NewEntry(file, content, opts)
		if err != nil {
			opts.Logger.Warn("Error processing catalog page", "file", file, "error", err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// NewEntry builds the card for the page at file (a slash separated path
// relative to the docs root).
func NewEntry(file string, content []byte, opts Options) (Entry, error) {
	opts = withDefaults(opts)

	meta, body, err := ParseFrontMatter(content)
	if err != nil {
		return Entry{}, err
	}

	title, _ := lookup(meta, "catalog_title", "title")
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		stem := strings.TrimSuffix(path.Base(file), path.Ext(file))
		title = titleCase(strings.ReplaceAll(stem, "-", " "))
	}

	description, _ := lookup(meta, "catalog_description", "description")

	icon, _ := lookup(meta, "catalog_icon", "tool_icon", "icon")
	if icon == "" {
		icon = opts.DefaultIcon
	}
	if !strings.HasPrefix(icon, "/") && !strings.HasPrefix(icon, "http") {
		icon = opts.BasePath + "/" + icon
	}

	return Entry{
		Title:       title,
		Description: description,
		Icon:        icon,
		Link:        opts.BasePath + "/" + strings.TrimSuffix(file, path.Ext(file)) + "/",
		Tags:        normalizeTags(meta["catalog_tags"]),
		Source:      file,
	}, nil
}

// Tags returns the sorted, de-duplicated tags of all entries.
func Tags(entries []Entry) []string {
	seen := map[string]struct{}{}
	var tags []string
	for _, e := range entries {
		for _, t := range e.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags
}

// TagLabel returns the button label for a tag.
func TagLabel(tag string) string {
	if strings.EqualFold(tag, "mcp") {
		return "MCP"
	}
	return titleCase(tag)
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.BasePath == "" {
		opts.BasePath = def.BasePath
	}
	opts.BasePath = strings.TrimSuffix(opts.BasePath, "/")
	if opts.DefaultIcon == "" {
		opts.DefaultIcon = def.DefaultIcon
	}
	if opts.ID == "" {
		opts.ID = def.ID
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	return opts
}

// lookup returns the value of the first key present in meta. A present key
// wins even when its value is empty.
func lookup(meta map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := meta[k]
		if !ok {
			continue
		}
		if v == nil {
			return "", true
		}
		if s, ok := v.(string); ok {
			return s, true
		}
		return fmt.Sprint(v), true
	}
	return "", false
}

func firstHeading(body []byte) string {
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func normalizeTags(v any) []string {
	var raw []string
	switch tags := v.(type) {
	case string:
		raw = []string{tags}
	case []any:
		for _, t := range tags {
			if t != nil {
				raw = append(raw, fmt.Sprint(t))
			}
		}
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		out = append(out, strings.ToLower(t))
	}
	return out
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
			prevLetter = true
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}
