package transcript

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Message is one logical chat message. Content is the header's trailing
// text plus any continuation lines joined with single spaces. LineIndex is
// the zero-based buffer index of the header line.
type Message struct {
	Timestamp time.Time
	Sender    string
	Content   string
	LineIndex int
}

// headerPattern matches the start of a message in the locale exported by
// WhatsApp: DD/M/YYYY, H:MM a.m.|p.m. - Sender: Content
var headerPattern = regexp.MustCompile(
	`^(\d{1,2})/(\d{1,2})/(\d{4}), (\d{1,2}):(\d{2}) (a\.m\.|p\.m\.) - ([^:]+): (.+)$`,
)

// Messages returns a restartable sequence of parsed messages. Parsing runs
// from scratch on every iteration because the buffer may have been mutated
// since the last one. Lines before the first valid header are dropped;
// any other non-header line continues the previous message.
func (s *Store) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		var current *Message
		var fragments []string

		for i, raw := range s.lines {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}

			m := headerPattern.FindStringSubmatch(line)
			if m == nil {
				if current != nil {
					fragments = append(fragments, line)
				}
				continue
			}

			if current != nil {
				current.Content = strings.Join(fragments, " ")
				if !yield(*current) {
					return
				}
			}

			current = &Message{
				Timestamp: parseHeaderTimestamp(m),
				Sender:    m[7],
				LineIndex: i,
			}
			fragments = fragments[:0]
			fragments = append(fragments, m[8])
		}

		if current != nil {
			current.Content = strings.Join(fragments, " ")
			yield(*current)
		}
	}
}

// MessageCount returns the number of logical messages in the buffer.
func (s *Store) MessageCount() int {
	count := 0
	for range s.Messages() {
		count++
	}
	return count
}

// Search returns all messages whose content contains query.
func (s *Store) Search(query string, caseSensitive bool) []Message {
	if !caseSensitive {
		query = strings.ToLower(query)
	}

	var results []Message
	for msg := range s.Messages() {
		content := msg.Content
		if !caseSensitive {
			content = strings.ToLower(content)
		}
		if strings.Contains(content, query) {
			results = append(results, msg)
		}
	}
	return results
}

// parseHeaderTimestamp converts the captured date/time fields to a
// time.Time. A header whose fields are out of range still counts as a
// message; the timestamp falls back to the current wall clock rather than
// aborting the parse.
func parseHeaderTimestamp(m []string) time.Time {
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	meridiem := m[6]

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 12 || minute > 59 {
		return time.Now()
	}

	// Convert to 24-hour clock
	if meridiem == "p.m." && hour != 12 {
		hour += 12
	} else if meridiem == "a.m." && hour == 12 {
		hour = 0
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local)
}
