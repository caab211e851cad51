package core

import (
	"encoding/json"
	"regexp"
	"strings"
)

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)

// ParseTags turns a raw model reply into a normalized tag list. Replies are
// expected to be a JSON array of strings, but models drift: markdown fences,
// single quotes, bullet lists, or plain comma-separated text all occur. The
// result holds at most maxTags entries, with no empty strings and no
// case-insensitive duplicates. A reply with fewer tags is returned as is,
// never padded.
func ParseTags(reply string, maxTags int) []string {
	if maxTags <= 0 {
		return nil
	}

	reply = stripFences(reply)
	if reply == "" {
		return nil
	}

	return normalize(splitReply(reply), maxTags)
}

func stripFences(reply string) string {
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "```") {
		reply = strings.TrimPrefix(reply, "```json")
		reply = strings.TrimPrefix(reply, "```")
		reply = strings.TrimSuffix(strings.TrimSpace(reply), "```")
	}
	return strings.TrimSpace(reply)
}

func splitReply(reply string) []string {
	start, end := strings.Index(reply, "["), strings.LastIndex(reply, "]")
	if start >= 0 && end > start {
		body := reply[start : end+1]

		var tags []string
		if err := json.Unmarshal([]byte(body), &tags); err == nil {
			return tags
		}

		// Not valid JSON (single quotes are common); fall back to splitting
		// the bracket contents.
		reply = body[1 : len(body)-1]
	}

	lines := nonBlank(strings.Split(reply, "\n"))
	if len(lines) > 1 {
		return lines
	}

	return strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == ';'
	})
}

func nonBlank(parts []string) []string {
	var out []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalize(candidates []string, maxTags int) []string {
	seen := make(map[string]bool, len(candidates))
	var tags []string

	for _, candidate := range candidates {
		tag := cleanTag(candidate)
		if tag == "" {
			continue
		}

		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true

		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}

	return tags
}

func cleanTag(raw string) string {
	tag := strings.TrimSpace(raw)
	tag = listMarker.ReplaceAllString(tag, "")
	tag = strings.TrimRight(tag, ",")
	tag = strings.Trim(tag, `"'`)
	return strings.TrimSpace(tag)
}
