// Package logbook keeps the human-readable journal of scoring: every saved
// score and track change, one line each, oldest first.
//
//	2025-03-02T10:04:11Z SCORE AC11 = 80 (mockup validated)
//	2025-03-02T10:05:40Z TRACK dev
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind tags a journal line.
type Kind string

const (
	KindScore Kind = "SCORE"
	KindTrack Kind = "TRACK"
	KindNote  Kind = "NOTE"
)

// Entry is one parsed journal line.
type Entry struct {
	Time time.Time
	Kind Kind
	Text string
}

// Logbook appends to a text file. A nil Logbook discards everything.
type Logbook struct {
	path  string
	mu    sync.Mutex
	clock func() time.Time
}

// New creates the parent directory of path. The file itself appears on the
// first write.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	return &Logbook{path: path, clock: time.Now}, nil
}

func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Record journals a saved score. Notes are flattened to one line.
func (l *Logbook) Record(code string, value int, note string) error {
	text := fmt.Sprintf("%s = %d", code, value)
	if note = flatten(note); note != "" {
		text += " (" + note + ")"
	}
	return l.append(KindScore, text)
}

// Track journals a track selection.
func (l *Logbook) Track(choice string) error {
	return l.append(KindTrack, choice)
}

// Notef journals free text.
func (l *Logbook) Notef(format string, args ...any) error {
	return l.append(KindNote, fmt.Sprintf(format, args...))
}

func (l *Logbook) append(kind Kind, text string) error {
	if l == nil {
		return nil
	}
	line := fmt.Sprintf("%s %-5s %s\n", l.clock().UTC().Format(time.RFC3339), kind, flatten(text))

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logbook: open %s: %w", l.path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("logbook: write %s: %w", l.path, err)
	}
	return nil
}

// Tail returns up to n of the newest lines and the number of lines in the
// journal. A missing journal is empty.
func (l *Logbook) Tail(n int) ([]string, int) {
	lines := l.lines()
	total := len(lines)
	if n <= 0 || total == 0 {
		return nil, total
	}
	if total > n {
		lines = lines[total-n:]
	}
	return lines, total
}

// Entries parses the journal, keeping only kind when it is not empty.
// Unparseable lines are skipped.
func (l *Logbook) Entries(kind Kind) []Entry {
	var out []Entry
	for _, line := range l.lines() {
		e, ok := Parse(line)
		if !ok || (kind != "" && e.Kind != kind) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (l *Logbook) lines() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// Parse reads a line written by the logbook.
func Parse(line string) (Entry, bool) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(fields) != 2 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, false
	}
	rest := strings.TrimLeft(fields[1], " ")
	kind, text, _ := strings.Cut(rest, " ")
	if kind == "" {
		return Entry{}, false
	}
	return Entry{Time: ts, Kind: Kind(kind), Text: strings.TrimSpace(text)}, true
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
