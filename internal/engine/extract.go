// Package engine implements the pure scoring pipeline: extraction of the grader
// JSON, normalization per exercise type, score calculation, reconciliation of
// AI and trainer passes and the certification projection.
package engine

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// an unterminated fence runs to the end of the input
var jsonFence = regexp.MustCompile("(?s)```(?:json|JSON)[ \\t]*\\r?\\n?(.*?)(?:```|$)")

// Extract pulls the JSON value out of a raw grader response.
//
// A ```json fence is preferred when present. Inside the chosen text an object
// window runs from the first '{' to the last '}'; brackets in the surrounding
// prose never widen it. A top-level array is tried first only when a '[' that
// opens JSON precedes every '{', and otherwise only after the object window
// failed. A window that does not parse gets one repair cycle (drop a dangling
// partial member, close open containers) before the next window is tried; when
// none works the call gives up with a *domain.MalformedResponseError.
func Extract(raw string) (any, error) {
	text := raw
	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		text = m[1]
	}
	windows := candidateWindows(text)
	if len(windows) == 0 {
		return nil, &domain.MalformedResponseError{Raw: raw, Reason: "no JSON object found"}
	}
	reason := ""
	for _, w := range windows {
		v, why := parseWindow(w)
		if why == "" {
			return v, nil
		}
		if reason == "" {
			reason = why
		}
	}
	return nil, &domain.MalformedResponseError{Raw: raw, Reason: reason}
}

// candidateWindows lists the slices of text worth parsing, best first.
func candidateWindows(text string) []string {
	var out []string
	arr, hasArr := arrayWindow(text)
	first := hasArr && arrayFirst(text)
	if first {
		out = append(out, arr)
	}
	if s, e := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); s >= 0 && e > s {
		out = append(out, text[s:e+1])
	}
	if hasArr && !first {
		out = append(out, arr)
	}
	return out
}

// arrayWindow runs from the first '[' to the last closer of either kind, so a
// truncated array of objects still reaches the repair cycle.
func arrayWindow(text string) (string, bool) {
	s := strings.IndexByte(text, '[')
	e := strings.LastIndexAny(text, "}]")
	if s < 0 || e <= s {
		return "", false
	}
	return text[s : e+1], true
}

// arrayFirst reports whether the first '[' comes before any '{' and looks like
// the start of a JSON array rather than prose such as "[v2]".
func arrayFirst(text string) bool {
	i := strings.IndexByte(text, '[')
	if i < 0 {
		return false
	}
	if j := strings.IndexByte(text, '{'); j >= 0 && j < i {
		return false
	}
	rest := strings.TrimLeft(text[i+1:], " \t\r\n")
	if rest == "" {
		return true
	}
	return strings.IndexByte("{[\"]-0123456789", rest[0]) >= 0
}

func parseWindow(window string) (any, string) {
	var v any
	if err := json.Unmarshal([]byte(window), &v); err == nil {
		return v, ""
	}
	repaired, ok := repairJSON(window)
	if !ok {
		return nil, "unbalanced JSON"
	}
	v = nil
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, "invalid JSON after repair: " + err.Error()
	}
	return v, ""
}

type scanState struct {
	open      []byte
	inString  bool
	lastComma int
	broken    bool
}

func scanJSON(s string) scanState {
	st := scanState{lastComma: -1}
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{', '[':
			st.open = append(st.open, c)
		case '}', ']':
			want := byte('{')
			if c == ']' {
				want = '['
			}
			if len(st.open) == 0 || st.open[len(st.open)-1] != want {
				st.broken = true
				return st
			}
			st.open = st.open[:len(st.open)-1]
		case ',':
			st.lastComma = i
		}
	}
	return st
}

// repairJSON performs the single repair cycle. It never grows the text beyond
// the closers needed for the containers it finds open.
func repairJSON(s string) (string, bool) {
	st := scanJSON(s)
	if st.broken {
		return "", false
	}
	if st.inString || danglingTail(s) {
		if st.lastComma < 0 {
			return "", false
		}
		s = s[:st.lastComma]
		if st = scanJSON(s); st.broken || st.inString {
			return "", false
		}
	}
	if len(st.open) == 0 {
		return s, true
	}
	var b strings.Builder
	b.Grow(len(s) + len(st.open))
	b.WriteString(s)
	for i := len(st.open) - 1; i >= 0; i-- {
		if st.open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

func danglingTail(s string) bool {
	t := strings.TrimRight(s, " \t\r\n")
	if t == "" {
		return false
	}
	switch t[len(t)-1] {
	case '"', ':', ',':
		return true
	}
	return false
}
