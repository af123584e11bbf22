// Package attachment enumerates media files exported alongside a WhatsApp
// chat and recovers capture timestamps from their filenames.
package attachment

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Kind distinguishes the two media families the pipeline reconciles.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// AudioExtensions are the voice-note containers WhatsApp exports.
var AudioExtensions = map[string]bool{
	".opus": true,
	".ogg":  true,
	".m4a":  true,
	".mp3":  true,
}

// ImageExtensions are the image formats WhatsApp exports.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Ref describes one attachment found on disk. Timestamp is only meaningful
// when HasTimestamp is true.
type Ref struct {
	Path         string
	Filename     string
	Kind         Kind
	Timestamp    time.Time
	HasTimestamp bool
}

// Filename conventions WhatsApp uses for media, in match priority order.
var (
	rePTT          = regexp.MustCompile(`PTT-(\d{8})-WA(\d{4})`)
	reIMGWA        = regexp.MustCompile(`IMG-(\d{8})-WA(\d{4})`)
	reIMGDateTime  = regexp.MustCompile(`IMG_(\d{8})_(\d{6})`)
	reBareDateTime = regexp.MustCompile(`(\d{8})_(\d{6})`)
)

// ExtractTimestamp applies the known filename patterns in order and returns
// the first parseable timestamp. Date-only conventions default the time to
// midnight. A filename matching no pattern is a normal outcome, reported
// through the second return value rather than an error.
func ExtractTimestamp(filename string) (time.Time, bool) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	if m := rePTT.FindStringSubmatch(stem); m != nil {
		if ts, err := time.ParseInLocation("20060102", m[1], time.Local); err == nil {
			return ts, true
		}
	}
	if m := reIMGWA.FindStringSubmatch(stem); m != nil {
		if ts, err := time.ParseInLocation("20060102", m[1], time.Local); err == nil {
			return ts, true
		}
	}
	if m := reIMGDateTime.FindStringSubmatch(stem); m != nil {
		if ts, err := time.ParseInLocation("20060102_150405", m[1]+"_"+m[2], time.Local); err == nil {
			return ts, true
		}
	}
	if m := reBareDateTime.FindStringSubmatch(stem); m != nil {
		if ts, err := time.ParseInLocation("20060102_150405", m[1]+"_"+m[2], time.Local); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}

// List returns the attachments of the given kind found directly in dir,
// sorted ascending by extracted timestamp with timestampless entries last.
// The sort is stable, so ties keep directory enumeration order. An absent
// directory yields an empty list, not an error.
func List(dir string, kind Kind) []Ref {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	exts := AudioExtensions
	if kind == KindImage {
		exts = ImageExtensions
	}

	var refs []Ref
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !exts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}

		ts, ok := ExtractTimestamp(e.Name())
		refs = append(refs, Ref{
			Path:         filepath.Join(dir, e.Name()),
			Filename:     e.Name(),
			Kind:         kind,
			Timestamp:    ts,
			HasTimestamp: ok,
		})
	}

	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].HasTimestamp != refs[j].HasTimestamp {
			return refs[i].HasTimestamp
		}
		return refs[i].Timestamp.Before(refs[j].Timestamp)
	})

	return refs
}
