package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventStart    EventType = "start"
	EventDelete   EventType = "delete"
	EventDownload EventType = "download"
	EventImport   EventType = "import"
	EventConvert  EventType = "convert"
	EventAnomaly  EventType = "anomaly"
	EventSkip     EventType = "skip"
	EventSummary  EventType = "summary"
	EventError    EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is one line of a run journal
type Event struct {
	Timestamp    time.Time         `json:"ts"`
	RunID        string            `json:"run_id"`
	Tool         string            `json:"tool"`
	Level        EventLevel        `json:"level"`
	Event        EventType         `json:"event"`
	PostType     string            `json:"post_type,omitempty"`
	PostID       int64             `json:"post_id,omitempty"`
	Table        string            `json:"table,omitempty"`
	URL          string            `json:"url,omitempty"`
	Path         string            `json:"path,omitempty"`
	Count        int64             `json:"count,omitempty"`
	BytesWritten int64             `json:"bytes_written,omitempty"`
	Duration     int64             `json:"duration_ms,omitempty"`
	Query        string            `json:"query,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Error        string            `json:"error,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// EventLogger writes the events of one tool run to a JSONL file. A nil
// logger accepts every call and writes nothing.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	tool     string
	minLevel EventLevel
}

// NewEventLogger creates the journal of a run of tool in outputDir.
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir, tool string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := uuid.NewString()
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("journal-%s-%s-%s.jsonl", tool, timestamp, runID[:8])
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}

	l := &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		tool:     tool,
		minLevel: minLevel,
	}
	if err := l.Log(&Event{Level: LevelInfo, Event: EventStart}); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID
	event.Tool = l.tool

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogDelete logs the bulk deletion of the posts of one post type
func (l *EventLogger) LogDelete(postType string, count int64) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventDelete,
		PostType: postType,
		Count:    count,
	})
}

// LogDownload logs the download and registration of a table
func (l *EventLogger) LogDownload(table, url, path string, bytesWritten int64, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:        level,
		Event:        EventDownload,
		Table:        table,
		URL:          url,
		Path:         path,
		BytesWritten: bytesWritten,
		Duration:     duration.Milliseconds(),
		Error:        errMsg,
	})
}

// LogImport logs the import of the settings of one database
func (l *EventLogger) LogImport(database string, types, diagnostics int) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventImport,
		PostType: database,
		Count:    int64(types),
		Extra: map[string]string{
			"diagnostics": strconv.Itoa(diagnostics),
		},
	})
}

// LogConvert logs the conversion of one post
func (l *EventLogger) LogConvert(postID int64, postType string, columns int) error {
	return l.Log(&Event{
		Level:    LevelDebug,
		Event:    EventConvert,
		PostID:   postID,
		PostType: postType,
		Count:    int64(columns),
	})
}

// LogAnomaly logs an update that did not affect exactly one row
func (l *EventLogger) LogAnomaly(postID, affected int64, query string) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventAnomaly,
		PostID: postID,
		Count:  affected,
		Query:  query,
	})
}

// LogSkip logs an item left untouched
func (l *EventLogger) LogSkip(postID int64, reason string) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventSkip,
		PostID: postID,
		Reason: reason,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, subject string, err error) error {
	return l.Log(&Event{
		Level:  LevelError,
		Event:  event,
		Reason: subject,
		Error:  err.Error(),
	})
}

// LogSummary logs the final counters of the run
func (l *EventLogger) LogSummary(count int64, duration time.Duration, extra map[string]string) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventSummary,
		Count:    count,
		Duration: duration.Milliseconds(),
		Extra:    extra,
	})
}

// Close closes the journal file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the journal file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the id shared by every event of the run
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}

// ReadEvents loads a journal file
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("journal %s line %d: %w", path, line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return events, nil
}
