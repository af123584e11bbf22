// Package transcript loads a WhatsApp chat export into an ordered line
// buffer and supports parsing it into messages and splicing attachment
// placeholders in place. Untouched lines survive a load/save round trip
// byte for byte.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AttachmentMarker is the literal suffix WhatsApp appends after an
// attachment filename in the exported transcript.
const AttachmentMarker = " (attached file)"

// Store owns the raw line buffer of one transcript file. Lines keep their
// original terminators so Save reproduces the input exactly when nothing
// was replaced.
type Store struct {
	path  string
	lines []string
}

// Load reads the transcript at path into memory. A missing file surfaces
// as an os.ErrNotExist wrapped error so callers can treat it as "no
// transcript yet".
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	return &Store{
		path:  path,
		lines: splitKeepEndings(data),
	}, nil
}

// Path returns the on-disk location backing this store.
func (s *Store) Path() string {
	return s.path
}

// LineCount returns the number of raw lines in the buffer.
func (s *Store) LineCount() int {
	return len(s.lines)
}

// ReplaceAttachment scans raw lines in order for the first line containing
// "<filename> (attached file)" and replaces only that substring, leaving
// the rest of the line untouched. The first occurrence wins; a second call
// for the same filename returns false because the marker is gone.
//
// Each call is a linear scan, so reconciling n attachments against an
// m-line transcript costs O(n*m). Exports are small enough in practice
// that this has not mattered.
func (s *Store) ReplaceAttachment(filename, replacement string) bool {
	marker := filename + AttachmentMarker

	for i, line := range s.lines {
		if strings.Contains(line, marker) {
			s.lines[i] = strings.Replace(line, marker, replacement, 1)
			return true
		}
	}

	return false
}

// Save writes the buffer back to the original path.
func (s *Store) Save() error {
	content := strings.Join(s.lines, "")
	if err := os.WriteFile(s.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Backup copies the current file to a sibling .backup path and returns it.
func (s *Store) Backup() (string, error) {
	backupPath := strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ".backup"

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read original for backup: %w", err)
	}
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	return backupPath, nil
}

// splitKeepEndings splits data into lines that retain their trailing
// newline characters. A final line without a terminator is kept as is.
func splitKeepEndings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}

	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}

	return lines
}
