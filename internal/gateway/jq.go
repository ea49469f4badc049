package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// ApplyFilter runs a jq expression over a JSON response, for picking
// fields out of call results on the command line. raw emits bare
// strings (like jq -r), compact single-line JSON; otherwise results are
// pretty-printed. Multiple results are joined with newlines.
func ApplyFilter(query, data string, raw, compact bool) (string, error) {
	var input interface{}
	if err := json.Unmarshal([]byte(data), &input); err != nil {
		return "", fmt.Errorf("response is not valid JSON: %w", err)
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return "", fmt.Errorf("invalid jq query: %w", err)
	}

	var results []interface{}
	iter := parsed.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return "", fmt.Errorf("jq error: %w", err)
		}
		results = append(results, v)
	}

	return formatResults(results, raw, compact)
}

func formatResults(results []interface{}, raw, compact bool) (string, error) {
	var lines []string
	for _, r := range results {
		if raw {
			if s, ok := r.(string); ok {
				lines = append(lines, s)
				continue
			}
			if r == nil {
				lines = append(lines, "null")
				continue
			}
		}

		var b []byte
		var err error
		if compact || raw {
			b, err = json.Marshal(r)
		} else {
			b, err = json.MarshalIndent(r, "", "  ")
		}
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n"), nil
}
