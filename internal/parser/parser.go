// Package parser reads and rewrites YAML frontmatter in Markdown notes.
package parser

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
}

// Parse extracts frontmatter and body from raw Markdown bytes.
// Invalid YAML is not an error: the whole file is treated as body.
func Parse(data []byte) (*Result, error) {
	block, body, ok := split(data)
	if !ok {
		return &Result{Body: string(data)}, nil
	}

	var fm map[string]any
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return &Result{Body: string(data)}, nil
	}

	return &Result{
		Frontmatter: fm,
		Body:        strings.TrimLeft(body, "\n\r"),
	}, nil
}

// split separates the YAML block (between leading --- delimiters) from the
// rest of the file. body starts on the line after the closing delimiter.
func split(data []byte) (block []byte, body string, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter: treat everything as body.
		return nil, string(data), false
	}

	after := rest[idx+1+len(delim):]
	switch {
	case bytes.HasPrefix(after, []byte("\r\n")):
		after = after[2:]
	case bytes.HasPrefix(after, []byte("\n")):
		after = after[1:]
	}
	return rest[:idx], string(after), true
}

// SetFields rewrites the frontmatter of data with updates applied and returns
// the new file content. A nil value deletes the key. Existing key order and
// the body are preserved; new keys are appended in sorted order.
func SetFields(data []byte, updates map[string]any) ([]byte, error) {
	block, body, ok := split(data)
	if !ok {
		body = string(data)
	}

	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if ok && len(bytes.TrimSpace(block)) > 0 {
		var doc yaml.Node
		if err := yaml.Unmarshal(block, &doc); err != nil {
			return nil, fmt.Errorf("parser: invalid frontmatter: %w", err)
		}
		if len(doc.Content) > 0 {
			if doc.Content[0].Kind != yaml.MappingNode {
				return nil, fmt.Errorf("parser: frontmatter is not a mapping")
			}
			mapping = doc.Content[0]
		}
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := updates[key]
		idx := -1
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			if mapping.Content[i].Value == key {
				idx = i
				break
			}
		}
		if value == nil {
			if idx >= 0 {
				mapping.Content = append(mapping.Content[:idx], mapping.Content[idx+2:]...)
			}
			continue
		}
		var vn yaml.Node
		if err := vn.Encode(value); err != nil {
			return nil, fmt.Errorf("parser: encode %s: %w", key, err)
		}
		if idx >= 0 {
			mapping.Content[idx+1] = &vn
			continue
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &vn)
	}

	if len(mapping.Content) == 0 {
		return []byte(body), nil
	}

	out, err := yaml.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(out)
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
