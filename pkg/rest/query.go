package rest

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgcrud/pkg/query"
)

// maxBracketDepth bounds keys like a[b][c]; deeper keys are rejected.
const maxBracketDepth = 5

// ParseBracketQuery turns bracket-notation query values into nested maps and
// slices: filter[0][field]=age becomes {"filter": [{"field": "age"}]}.
// Objects whose keys are all integers become slices ordered by index, "[]"
// appends and a repeated plain key becomes a slice of its values.
func ParseBracketQuery(values url.Values) (map[string]any, error) {
	root := make(map[string]any)
	for _, key := range slices.Sorted(maps.Keys(values)) {
		path, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		for _, v := range values[key] {
			if err := insert(root, key, path, v); err != nil {
				return nil, err
			}
		}
	}
	for k, v := range root {
		root[k] = compact(v)
	}
	return root, nil
}

// ParseQueryParams decodes a request's query string into QueryParams.
// A comma separated plain fields value, as in ?fields=id,name, is split.
func ParseQueryParams(values url.Values) (query.QueryParams, error) {
	tree, err := ParseBracketQuery(values)
	if err != nil {
		return query.QueryParams{}, err
	}
	if f, ok := tree["fields"].(string); ok {
		var fields []any
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				fields = append(fields, name)
			}
		}
		tree["fields"] = fields
	}
	return query.Decode(tree)
}

func splitKey(key string) ([]string, error) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}, nil
	}
	path := []string{key[:open]}
	rest := key[open:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, malformed(key)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, malformed(key)
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	if len(path)-1 > maxBracketDepth {
		return nil, &query.ValidationError{Field: path[0], Message: fmt.Sprintf("query key %q is nested too deeply", key)}
	}
	return path, nil
}

func malformed(key string) error {
	return &query.ValidationError{Message: fmt.Sprintf("malformed query key %q", key)}
}

func insert(root map[string]any, key string, path []string, value string) error {
	cur := root
	for i, seg := range path {
		if seg == "" {
			seg = nextIndex(cur)
		}
		if i == len(path)-1 {
			switch existing := cur[seg].(type) {
			case nil:
				cur[seg] = value
			case string:
				cur[seg] = []any{existing, value}
			case []any:
				cur[seg] = append(existing, value)
			default:
				return conflict(key)
			}
			return nil
		}

		switch next := cur[seg].(type) {
		case nil:
			child := make(map[string]any)
			cur[seg] = child
			cur = child
		case map[string]any:
			cur = next
		default:
			return conflict(key)
		}
	}
	return nil
}

func conflict(key string) error {
	return &query.ValidationError{Message: fmt.Sprintf("query key %q mixes a value and nested keys", key)}
}

func nextIndex(m map[string]any) string {
	n := 0
	for k := range m {
		if i, err := strconv.Atoi(k); err == nil && i >= n {
			n = i + 1
		}
	}
	return strconv.Itoa(n)
}

// compact rewrites integer-keyed objects into slices, depth first.
func compact(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = compact(child)
	}

	indices := make([]int, 0, len(m))
	for k := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || strconv.Itoa(i) != k {
			return m
		}
		indices = append(indices, i)
	}
	if len(indices) == 0 {
		return m
	}
	slices.Sort(indices)
	out := make([]any, len(indices))
	for j, i := range indices {
		out[j] = m[strconv.Itoa(i)]
	}
	return out
}
