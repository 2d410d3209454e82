package logging

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FreshLoginMessage is logged once per successful login that published a new
// session. Race analysis keys off this message.
const FreshLoginMessage = "fresh login completed"

// LogEntry represents a parsed log entry with all structured fields.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	PID       int            `json:"pid,omitempty"`
	Host      string         `json:"host,omitempty"`
	Role      string         `json:"role,omitempty"`
	Component string         `json:"component,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter defines criteria for filtering log entries.
type LogFilter struct {
	// Level filters to entries at or above this level (DEBUG < INFO < WARN < ERROR)
	Level string

	StartTime time.Time
	EndTime   time.Time

	Role      string
	Component string
	Phase     string

	// PID filters to entries from one worker process. Zero disables the filter.
	PID int

	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// AggregateLogs reads and parses all log entries from a log file. Lines that
// are not valid JSON are skipped. Entries are returned sorted by timestamp in
// ascending order.
func AggregateLogs(logPath string) ([]LogEntry, error) {
	file, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file found at %s: %w", logPath, err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ParseLogs(file)
}

// maxLineSize bounds a single log line; longer lines abort parsing.
const maxLineSize = 1 << 20

// coreFields are decoded into LogEntry fields; every other key of a line
// lands in Attrs.
var coreFields = map[string]bool{
	"time": true, "level": true, "msg": true, "pid": true, "host": true,
	"role": true, "component": true, "phase": true,
}

// ParseLogs parses JSON log lines from r, skipping blank and malformed
// lines, and returns them sorted by timestamp.
func ParseLogs(r io.Reader) ([]LogEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var entries []LogEntry
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if entry, ok := parseLogEntry(line); ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// parseLogEntry decodes one line. Fields of the wrong type are left zero
// rather than rejecting the line.
func parseLogEntry(line []byte) (LogEntry, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEntry{}, false
	}

	var entry LogEntry
	decode := func(key string, dst any) {
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	decode("time", &entry.Timestamp)
	decode("level", &entry.Level)
	decode("msg", &entry.Message)
	decode("pid", &entry.PID)
	decode("host", &entry.Host)
	decode("role", &entry.Role)
	decode("component", &entry.Component)
	decode("phase", &entry.Phase)

	for k, v := range raw {
		if coreFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if entry.Attrs == nil {
			entry.Attrs = make(map[string]any)
		}
		entry.Attrs[k] = val
	}
	return entry, true
}

// FilterLogs filters log entries based on the provided filter criteria.
// Multiple filter criteria are combined with AND logic.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}

	var filtered []LogEntry
	for _, entry := range entries {
		if matchesFilter(entry, filter) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if filter.Level != "" {
		filterLevelOrder, filterOk := levelOrder[strings.ToUpper(filter.Level)]
		entryLevelOrder, entryOk := levelOrder[entry.Level]
		if filterOk && entryOk && entryLevelOrder < filterLevelOrder {
			return false
		}
	}

	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}

	if filter.Role != "" && entry.Role != filter.Role {
		return false
	}
	if filter.Component != "" && entry.Component != filter.Component {
		return false
	}
	if filter.Phase != "" && entry.Phase != filter.Phase {
		return false
	}
	if filter.PID != 0 && entry.PID != filter.PID {
		return false
	}

	if filter.MessageContains != "" && !strings.Contains(entry.Message, filter.MessageContains) {
		return false
	}

	return true
}

// DuplicateLogin is a pair of fresh logins for the same role that happened
// close enough together to indicate the cache did not serialize them.
type DuplicateLogin struct {
	Role   string
	First  LogEntry
	Second LogEntry
	Gap    time.Duration
}

// DetectDuplicateLogins scans entries for fresh logins of the same role
// within window of each other. Entries must be sorted by timestamp.
func DetectDuplicateLogins(entries []LogEntry, window time.Duration) []DuplicateLogin {
	last := make(map[string]LogEntry)
	var dups []DuplicateLogin

	for _, entry := range entries {
		if entry.Message != FreshLoginMessage || entry.Role == "" {
			continue
		}
		if prev, ok := last[entry.Role]; ok {
			gap := entry.Timestamp.Sub(prev.Timestamp)
			if gap < window {
				dups = append(dups, DuplicateLogin{
					Role:   entry.Role,
					First:  prev,
					Second: entry,
					Gap:    gap,
				})
			}
		}
		last[entry.Role] = entry
	}

	return dups
}

// ExportLogEntries writes the given log entries to w in the specified format.
// Supported formats: "json", "text", "csv".
func ExportLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		return exportJSON(w, entries)
	case "text":
		return exportText(w, entries)
	case "csv":
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}
}

func exportJSON(w io.Writer, entries []LogEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// worker identifies the writing process as pid@host.
func (e LogEntry) worker() string {
	switch {
	case e.PID == 0:
		return e.Host
	case e.Host == "":
		return strconv.Itoa(e.PID)
	default:
		return fmt.Sprintf("%d@%s", e.PID, e.Host)
	}
}

func attrsJSON(e LogEntry) string {
	if len(e.Attrs) == 0 {
		return ""
	}
	b, err := json.Marshal(e.Attrs)
	if err != nil {
		return ""
	}
	return string(b)
}

// exportText writes one line per entry:
//
//	15:04:05.000 INFO  [standard/auth/login] 4312@ci-3 fresh login completed {"attempts":1}
func exportText(w io.Writer, entries []LogEntry) error {
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %-5s", e.Timestamp.Format("2006-01-02 15:04:05.000"), e.Level)

		var scope []string
		for _, s := range []string{e.Role, e.Component, e.Phase} {
			if s != "" {
				scope = append(scope, s)
			}
		}
		if len(scope) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(scope, "/"))
		}
		if wk := e.worker(); wk != "" {
			b.WriteString(" " + wk)
		}
		b.WriteString(" " + e.Message)
		if attrs := attrsJSON(e); attrs != "" {
			b.WriteString(" " + attrs)
		}
		b.WriteByte('\n')

		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{"timestamp", "level", "message", "pid", "host", "role", "component", "phase", "attrs"}

func exportCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		pid := ""
		if e.PID != 0 {
			pid = strconv.Itoa(e.PID)
		}
		record := []string{
			e.Timestamp.Format(time.RFC3339Nano), e.Level, e.Message,
			pid, e.Host, e.Role, e.Component, e.Phase, attrsJSON(e),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
