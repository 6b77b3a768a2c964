package summary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract returns the value at path in a JSON document as a string.
//
// path is either a gjson path (metrics.http_reqs.values.rate) or a simple
// JSONPath ($.metrics.http_reqs.values.rate). Bracketed keys may contain
// dots: $.metrics.checks.thresholds['rate>0.99'].
func Extract(data []byte, path string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	result := gjson.GetBytes(data, convertToGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ExtractMultiple extracts every path, keeping the successful ones and
// reporting all failures in one error.
func ExtractMultiple(data []byte, paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths provided")
	}

	results := make(map[string]string, len(paths))
	var errs []string
	for _, path := range paths {
		value, err := Extract(data, path)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		results[path] = value
	}

	if len(errs) > 0 {
		return results, fmt.Errorf("extraction errors: %s", strings.Join(errs, "; "))
	}
	return results, nil
}

func failedThresholds(data []byte) []string {
	var failed []string
	gjson.GetBytes(data, "metrics").ForEach(func(metric, m gjson.Result) bool {
		m.Get("thresholds").ForEach(func(expr, passed gjson.Result) bool {
			if !passed.Bool() {
				failed = append(failed, metric.String()+": "+expr.String())
			}
			return true
		})
		return true
	})
	sort.Strings(failed)
	return failed
}

// convertToGjsonPath converts a simple JSONPath expression to gjson syntax.
func convertToGjsonPath(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var parts []string
	for len(path) > 0 {
		switch {
		case strings.HasPrefix(path, "['"), strings.HasPrefix(path, `["`):
			quote := path[1:2]
			end := strings.Index(path[2:], quote+"]")
			if end < 0 {
				parts = append(parts, escapeKey(path))
				path = ""
				continue
			}
			parts = append(parts, escapeKey(path[2:2+end]))
			path = path[2+end+2:]
		case strings.HasPrefix(path, "["):
			end := strings.Index(path, "]")
			if end < 0 {
				parts = append(parts, path)
				path = ""
				continue
			}
			parts = append(parts, path[1:end])
			path = path[end+1:]
		default:
			end := strings.IndexAny(path, ".[")
			if end < 0 {
				end = len(path)
			}
			if end > 0 {
				parts = append(parts, path[:end])
			}
			path = path[end:]
		}
		path = strings.TrimPrefix(path, ".")
	}

	return strings.Join(parts, ".")
}

// escapeKey escapes characters gjson treats as path syntax.
func escapeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
