package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// TextBuilderVersion must be bumped whenever embedding text construction
// changes. A corpus built with another version is wiped and re-embedded.
const TextBuilderVersion = "1.0.0"

// MaxEmbeddingText caps embedding texts, in bytes.
const MaxEmbeddingText = 8000

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	spacePattern      = regexp.MustCompile(`\s+`)
	fencePattern      = regexp.MustCompile("(?s)```.*?```")
	mdLinkPattern     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	wikiLinkPattern   = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)
	mdMarkupPattern   = regexp.MustCompile("[#*_>`]+")
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*\s*$`)
	frontMatterPrefix = "---\n"
)

// GamedataText flattens a JSON record into "Path: value" lines headed by the
// record name. Keys are sorted so the text is stable across key order.
// Content that is not JSON is embedded as collapsed text.
func GamedataText(name, raw string) string {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return truncate(name + "\n" + collapse(raw))
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('\n')
	flatten(&b, "", v)
	return truncate(strings.TrimRight(b.String(), "\n"))
}

func flatten(b *strings.Builder, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flatten(b, p, t[k])
		}
	case []any:
		for _, e := range t {
			flatten(b, prefix+"[]", e)
		}
	case nil:
	default:
		if b.Len() >= MaxEmbeddingText {
			return
		}
		fmt.Fprintf(b, "%s: %v\n", prefix, t)
	}
}

// MarkupText strips tags from UI markup and keeps attribute values, which
// carry most of the meaning in layout files.
func MarkupText(name, raw string) string {
	text := tagPattern.ReplaceAllStringFunc(raw, func(tag string) string {
		return " " + attributeValues(tag) + " "
	})
	return truncate(name + "\n" + collapse(text))
}

var attrPattern = regexp.MustCompile(`(\w+)\s*[=:]\s*"([^"]*)"`)

func attributeValues(tag string) string {
	matches := attrPattern.FindAllStringSubmatch(tag, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[2] != "" {
			parts = append(parts, m[1]+"="+m[2])
		}
	}
	return strings.Join(parts, " ")
}

// MarkdownText drops front matter, code fences and markup characters, and
// keeps link labels.
func MarkdownText(title, raw string) string {
	text := stripFrontMatter(raw)
	text = fencePattern.ReplaceAllString(text, " ")
	text = wikiLinkPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := wikiLinkPattern.FindStringSubmatch(m)
		if sub[2] != "" {
			return sub[2]
		}
		return sub[1]
	})
	text = mdLinkPattern.ReplaceAllString(text, "$1")
	text = mdMarkupPattern.ReplaceAllString(text, " ")
	return truncate(title + "\n" + collapse(text))
}

// MarkdownTitle returns the first heading, or "" when there is none.
func MarkdownTitle(raw string) string {
	m := headingPattern.FindStringSubmatch(stripFrontMatter(raw))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func stripFrontMatter(raw string) string {
	if !strings.HasPrefix(raw, frontMatterPrefix) {
		return raw
	}
	rest := raw[len(frontMatterPrefix):]
	if i := strings.Index(rest, "\n---"); i >= 0 {
		rest = rest[i+4:]
		return strings.TrimPrefix(rest, "\n")
	}
	return raw
}

func collapse(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// truncate cuts s to MaxEmbeddingText bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= MaxEmbeddingText {
		return s
	}
	cut := MaxEmbeddingText
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// trimBOM removes a UTF-8 byte order mark.
func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
