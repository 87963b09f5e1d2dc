// Package adhoc recovers per-host results from the one-line output of ad-hoc
// remote execution tools:
//
//	web01 | SUCCESS => {"ansible_facts": {...}, "changed": false}
//	web02 | UNREACHABLE! => {
//	    "msg": "Failed to connect to the host via ssh",
//	    "unreachable": true
//	}
//	web03 | FAILED | rc=1 | (stdout) ...
//
// Payloads may span several lines. A malformed record never affects the
// other records of the batch.
package adhoc

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrNoResults is returned when the tool exited with an error and produced
// no host record at all.
var ErrNoResults = errors.New("no results collected")

const (
	// MsgKey and RawOutputKey are set on degraded records.
	MsgKey       = "_msg"
	RawOutputKey = "_raw_output"

	maxRawOutput = 1000
	maxStderr    = 500
)

var (
	headerRe = regexp.MustCompile(`^\s*([^\s|]+)\s*\|\s*([A-Za-z!]+)\s*(.*)$`)
	msgRe    = regexp.MustCompile(`"msg"\s*:\s*"([^"]+)"`)
)

// Outcome summarizes a parse.
type Outcome string

const (
	// OutcomeEmpty means no host record was found.
	OutcomeEmpty Outcome = "empty"
	// OutcomePartial means at least one host failed or was unreachable.
	OutcomePartial Outcome = "partial"
	// OutcomeComplete means every host record is a success.
	OutcomeComplete Outcome = "complete"
)

type Data = map[string]any

// ParseResult holds the per-host payloads keyed by host, split by outcome.
type ParseResult struct {
	Success     map[string]Data
	Failed      map[string]Data
	Unreachable map[string]Data
	Outcome     Outcome
}

func (r *ParseResult) Len() int {
	return len(r.Success) + len(r.Failed) + len(r.Unreachable)
}

type hostStatus int

const (
	statusUnknown hostStatus = iota
	statusSuccess
	statusFailed
	statusUnreachable
)

type record struct {
	host    string
	status  hostStatus
	payload strings.Builder
	depth   braceCounter
	isJSON  bool
}

// ParseMultiHostOutput splits stdout into host records. An Empty outcome is
// only an error when exitCode is not zero.
func ParseMultiHostOutput(stdout, stderr string, exitCode int) (*ParseResult, error) {
	result := &ParseResult{
		Success:     map[string]Data{},
		Failed:      map[string]Data{},
		Unreachable: map[string]Data{},
	}

	var current *record
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if current != nil && current.isJSON && current.depth.open() {
			current.payload.WriteByte('\n')
			current.payload.WriteString(line)
			current.depth.feed(line)
			if !current.depth.open() {
				result.add(current)
				current = nil
			}
			continue
		}

		rec := parseHeader(line)
		if rec == nil {
			continue
		}
		if current != nil {
			result.add(current)
		}
		current = rec
		if !current.isJSON || !current.depth.open() {
			result.add(current)
			current = nil
		}
	}
	if current != nil {
		// unbalanced payload at end of output
		result.add(current)
	}

	switch {
	case result.Len() == 0:
		result.Outcome = OutcomeEmpty
	case len(result.Failed) > 0 || len(result.Unreachable) > 0:
		result.Outcome = OutcomePartial
	default:
		result.Outcome = OutcomeComplete
	}

	if result.Outcome == OutcomeEmpty {
		if exitCode != 0 {
			return result, fmt.Errorf("%w: exit code %d: %s", ErrNoResults, exitCode, truncate(strings.TrimSpace(stderr), maxStderr))
		}
		zap.S().Named("adhoc").Warnw("no host matched", "stderr", truncate(stderr, maxStderr))
	}

	return result, nil
}

func parseHeader(line string) *record {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	rec := &record{host: m[1], status: classify(m[2])}
	rest := strings.TrimSpace(m[3])

	if after, ok := strings.CutPrefix(rest, "=>"); ok {
		payload := strings.TrimSpace(after)
		rec.payload.WriteString(payload)
		if strings.HasPrefix(payload, "{") {
			rec.isJSON = true
			rec.depth.feed(payload)
		}
		return rec
	}

	// "host | FAILED | rc=1 | (stdout) ..." style. Any other "a | b" line is
	// not a host record.
	after, ok := strings.CutPrefix(rest, "|")
	if !ok || !strings.HasPrefix(strings.TrimSpace(after), "rc=") {
		return nil
	}
	rec.payload.WriteString(strings.TrimSpace(after))
	return rec
}

func classify(token string) hostStatus {
	t := strings.ToUpper(token)
	switch {
	case strings.Contains(t, "UNREACHABLE"):
		return statusUnreachable
	case strings.Contains(t, "FAILED"):
		return statusFailed
	case strings.Contains(t, "SUCCESS"), strings.Contains(t, "CHANGED"):
		return statusSuccess
	default:
		return statusUnknown
	}
}

func (r *ParseResult) add(rec *record) {
	raw := rec.payload.String()
	status := rec.status

	var data Data
	if rec.isJSON {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			data = degraded(raw, status)
		}
	} else {
		data = degraded(raw, status)
	}

	if status == statusSuccess && flag(data, "failed") {
		status = statusFailed
	}
	if status == statusUnknown {
		switch {
		case flag(data, "unreachable"):
			status = statusUnreachable
		case flag(data, "failed"):
			status = statusFailed
		default:
			status = statusSuccess
		}
	}

	target := r.Success
	switch status {
	case statusFailed:
		target = r.Failed
	case statusUnreachable:
		target = r.Unreachable
	}

	if _, dup := r.Success[rec.host]; dup {
		delete(r.Success, rec.host)
	}
	if _, dup := r.Failed[rec.host]; dup {
		delete(r.Failed, rec.host)
	}
	if _, dup := r.Unreachable[rec.host]; dup {
		delete(r.Unreachable, rec.host)
	}
	target[rec.host] = data
}

// degraded keeps a record whose payload is not valid JSON.
func degraded(raw string, status hostStatus) Data {
	msg := ""
	if m := msgRe.FindStringSubmatch(raw); m != nil {
		msg = m[1]
	}
	if msg == "" {
		switch status {
		case statusUnreachable:
			msg = "Host unreachable"
		default:
			msg = strings.TrimSpace(truncate(raw, maxRawOutput))
		}
	}
	return Data{
		MsgKey:       msg,
		RawOutputKey: truncate(raw, maxRawOutput),
	}
}

func flag(data Data, key string) bool {
	v, ok := data[key].(bool)
	return ok && v
}

// Message extracts a human readable message from a host payload.
func Message(data Data) string {
	for _, key := range []string{"msg", MsgKey, "stderr", "module_stderr", "stdout"} {
		if s, ok := data[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// braceCounter tracks JSON object nesting across lines, ignoring braces
// inside string literals.
type braceCounter struct {
	depth    int
	inString bool
	escaped  bool
}

func (b *braceCounter) open() bool {
	return b.depth > 0
}

func (b *braceCounter) feed(s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if b.inString {
			switch {
			case b.escaped:
				b.escaped = false
			case c == '\\':
				b.escaped = true
			case c == '"':
				b.inString = false
			}
			continue
		}
		switch c {
		case '"':
			b.inString = true
		case '{':
			b.depth++
		case '}':
			b.depth--
		}
	}
}
