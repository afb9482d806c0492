package catalog

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseFrontMatter splits a markdown document into its YAML frontmatter and
// body. Documents without a leading fence, or with an opening fence that is
// never closed, have empty frontmatter and the whole document as body.
func ParseFrontMatter(content []byte) (map[string]any, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return map[string]any{}, normalized, nil
	}

	rest := normalized[4:]
	var metaBytes, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte("---\n")):
		body = rest[4:]
	default:
		parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
		if len(parts) < 2 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return map[string]any{}, normalized, nil
			}
			parts = [][]byte{rest[:len(rest)-4], nil}
		}
		metaBytes, body = parts[0], parts[1]
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("catalog: parse frontmatter: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, body, nil
}
