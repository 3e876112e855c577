package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Diagnostic is the structured form a compiler line parses into when
// `-error-format json` is active (spec.md 4.4, "Error format"; 4.5,
// "Diagnostics").
type Diagnostic struct {
	Level     string     `json:"level"`
	Message   string     `json:"message"`
	Loc       *SourceLoc `json:"loc,omitempty"`
	ErrorCode string     `json:"error_code,omitempty"`
}

// SourceLoc is a single-file source span, matching the shape the test
// orchestrator's expect-test patching also consumes (spec.md 4.6).
type SourceLoc struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// Render formats a diagnostic the way the plain scrolling terminal log
// renders a compiler message: "<path>:<line>:<col> <level>: <message>".
func (d Diagnostic) Render() string {
	if d.Loc == nil {
		return fmt.Sprintf("%s: %s", d.Level, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d %s: %s", d.Loc.Path, d.Loc.StartLine, d.Loc.StartCol, d.Level, d.Message)
}

// DiagnosticSink is the process-wide mutex-protected buffer every node's
// captured output lines are appended to (spec.md 5, "The diagnostic sink is
// a process-wide mutex-protected buffer whose lines are flushed to the
// per-mode output file at the end of the invocation").
type DiagnosticSink struct {
	mutex    sync.Mutex
	jsonMode bool
	rendered []string // lines as shown on the terminal
	rawLines []string // every raw line, cached verbatim for replay
}

// NewDiagnosticSink constructs an empty sink. jsonMode controls whether
// captured lines are first attempted as JSON diagnostics.
func NewDiagnosticSink(jsonMode bool) *DiagnosticSink {
	return &DiagnosticSink{jsonMode: jsonMode}
}

// Capture processes one command's combined stdout+stderr output, line by
// line: each line that parses as a Diagnostic (in JSON mode) is rendered;
// every other line is echoed verbatim. All lines are retained for replay.
func (s *DiagnosticSink) Capture(output []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.appendLine(line)
	}
}

func (s *DiagnosticSink) appendLine(line string) {
	rendered := line
	if s.jsonMode && strings.HasPrefix(strings.TrimSpace(line), "{") {
		var d Diagnostic
		if err := json.Unmarshal([]byte(line), &d); err == nil && d.Message != "" {
			rendered = d.Render()
		}
	}
	s.mutex.Lock()
	s.rawLines = append(s.rawLines, line)
	s.rendered = append(s.rendered, rendered)
	s.mutex.Unlock()
}

// Lines returns the rendered lines captured so far, for a live terminal
// renderer to print as they arrive.
func (s *DiagnosticSink) Lines() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.rendered...)
}

// Flush writes every raw line captured this invocation to
// <targetRoot>/<mode>.output, so a subsequent no-op invocation ("no work to
// do") can replay the cached diagnostics without rerunning any command
// (spec.md 4.5, "Diagnostics").
func (s *DiagnosticSink) Flush(targetRoot, mode string) error {
	s.mutex.Lock()
	lines := append([]string(nil), s.rawLines...)
	s.mutex.Unlock()

	path := filepath.Join(targetRoot, mode+".output")
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

// ReplayOutput reads back a previously flushed output file, returning its
// raw lines (empty, not an error, if none was ever written).
func ReplayOutput(targetRoot, mode string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(targetRoot, mode+".output"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}
