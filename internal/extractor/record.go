package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a parsed game data document. Field access goes through dotted
// paths such as "Recipe.Input[].ItemId", where "[]" iterates an array. Every
// accessor takes an ordered list of alternative paths and uses the first one
// that yields a value, which is how legacy spellings of a field are handled.
type Record struct {
	ID         string
	OwningFile string
	DataType   string

	fields map[string]any
}

// ParseRecord decodes a JSON object.
func ParseRecord(id, owningFile string, content []byte) (Record, error) {
	var fields map[string]any
	if err := json.Unmarshal(content, &fields); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrParse, owningFile, err)
	}
	if fields == nil {
		return Record{}, fmt.Errorf("%w: %s: not a JSON object", ErrParse, owningFile)
	}
	return Record{ID: id, OwningFile: owningFile, fields: fields}, nil
}

// NewRecord wraps already decoded fields.
func NewRecord(id, owningFile string, fields map[string]any) Record {
	return Record{ID: id, OwningFile: owningFile, fields: fields}
}

// Has reports whether the top-level key exists.
func (r Record) Has(key string) bool {
	_, ok := lookupKey(r.fields, key)
	return ok
}

type segment struct {
	key     string
	iterate bool
}

func parsePath(path string) []segment {
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		seg := segment{key: p}
		if k, ok := strings.CutSuffix(p, "[]"); ok {
			seg.key = k
			seg.iterate = true
		}
		segs = append(segs, seg)
	}
	return segs
}

// lookupKey matches exactly first and falls back to a case-insensitive
// match. When several keys differ only by case, the lowest in byte order
// wins, so the result never depends on map iteration.
func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	best, found := "", false
	for k := range m {
		if strings.EqualFold(k, key) && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	return m[best], true
}

// values evaluates a single path and returns every value it reaches.
func (r Record) values(path string) []any {
	current := []any{r.fields}
	for _, seg := range parsePath(path) {
		var next []any
		for _, v := range current {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			child, ok := lookupKey(m, seg.key)
			if !ok || child == nil {
				continue
			}
			if seg.iterate {
				if arr, ok := child.([]any); ok {
					next = append(next, arr...)
				}
				continue
			}
			next = append(next, child)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Strings returns the string values of the first path that yields any. An
// array of strings at the end of a path is flattened.
func (r Record) Strings(paths ...string) []string {
	for _, p := range paths {
		var out []string
		for _, v := range r.values(p) {
			if arr, ok := v.([]any); ok {
				for _, el := range arr {
					if s, ok := scalarString(el); ok {
						out = append(out, s)
					}
				}
				continue
			}
			if s, ok := scalarString(v); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// String returns the first string found by Strings.
func (r Record) String(paths ...string) string {
	if s := r.Strings(paths...); len(s) > 0 {
		return s[0]
	}
	return ""
}

// Number returns the first numeric value found, accepting numeric strings.
func (r Record) Number(paths ...string) (float64, bool) {
	for _, p := range paths {
		for _, v := range r.values(p) {
			switch t := v.(type) {
			case float64:
				return t, true
			case string:
				if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

// Objects returns the objects reached by the first path that yields any.
// Sub-records keep the identity of r.
func (r Record) Objects(paths ...string) []Record {
	for _, p := range paths {
		var out []Record
		for _, v := range r.values(p) {
			if m, ok := v.(map[string]any); ok {
				out = append(out, Record{ID: r.ID, OwningFile: r.OwningFile, DataType: r.DataType, fields: m})
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
