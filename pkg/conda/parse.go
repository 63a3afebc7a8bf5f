package conda

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParsePackageList decodes the output of `list --json`. Anything that is not a JSON array
// yields an empty list.
func ParsePackageList(stdout string) []json.RawMessage {
	var packages []json.RawMessage
	if err := json.Unmarshal([]byte(stdout), &packages); err != nil {
		return []json.RawMessage{}
	}
	if packages == nil {
		return []json.RawMessage{}
	}
	return packages
}

// ParseOutcome normalizes the JSON document printed by env create/update or create.
// Malformed output degrades to an empty document.
func ParseOutcome(stdout string, exitCode int) *Outcome {
	outcome := &Outcome{ReturnCode: exitCode, Success: true}

	doc := map[string]json.RawMessage{}
	if strings.TrimSpace(stdout) != "" {
		if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
			doc = map[string]json.RawMessage{}
		}
	}

	if raw, ok := doc["actions"]; ok && !isNull(raw) {
		outcome.Actions = raw
		outcome.Changed = nonEmpty(raw)
	}

	if raw, ok := doc["prefix"]; ok {
		var prefix string
		if err := json.Unmarshal(raw, &prefix); err == nil {
			outcome.Prefix = prefix
		}
	}

	if raw, ok := doc["success"]; ok {
		outcome.Success = truthy(raw)
	}

	for _, key := range []string{"message", "error"} {
		var msg string
		if raw, ok := doc[key]; ok && json.Unmarshal(raw, &msg) == nil && msg != "" {
			outcome.Message = msg
			break
		}
	}

	return outcome
}

// ParseEnvLines reads KEY=VALUE lines. Lines without "=" are skipped; values keep any further
// "=" characters.
func ParseEnvLines(stdout string) map[string]string {
	env := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimSpace(stdout)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		env[key] = value
	}
	return env
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// nonEmpty reports whether an actions value has a length greater than zero. Objects and
// arrays count their members, strings their characters; other scalars have no length.
func nonEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '{':
		var m map[string]json.RawMessage
		return json.Unmarshal(trimmed, &m) == nil && len(m) > 0
	case '[':
		var a []json.RawMessage
		return json.Unmarshal(trimmed, &a) == nil && len(a) > 0
	case '"':
		var s string
		return json.Unmarshal(trimmed, &s) == nil && s != ""
	default:
		return false
	}
}

func truthy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return false
	}
	switch trimmed[0] {
	case 't':
		return true
	case 'f':
		return false
	case '{', '[', '"':
		return nonEmpty(trimmed)
	default:
		n, err := strconv.ParseFloat(string(trimmed), 64)
		return err == nil && n != 0
	}
}
