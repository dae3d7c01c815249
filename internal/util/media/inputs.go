package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// extPriority ranks recognised media extensions (lower = listed first when
// two files share a base name). Unknown extensions are not media.
var extPriority = map[string]int{
	".wav":  0,
	".flac": 1,
	".m4a":  2,
	".mp3":  3,
	".aac":  4,
	".ogg":  5,
	".opus": 6,
	".mp4":  7,
	".mkv":  8,
	".webm": 9,
	".mov":  10,
	".avi":  11,
}

// IsMedia reports whether path has a recognised audio or video extension.
func IsMedia(path string) bool {
	_, ok := extPriority[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsCandidate reports whether a file name should be picked up from a
// directory: a visible media file that is not itself an output carrying
// suffix.
func IsCandidate(name, suffix string) bool {
	name = filepath.Base(name)
	if strings.HasPrefix(name, ".") || !IsMedia(name) {
		return false
	}
	return suffix == "" || !strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), suffix)
}

// ExpandInputs resolves command-line arguments into input files. Files are
// kept as given, in order. A directory contributes its media files (not
// recursive), sorted by base name then extension priority, skipping files
// whose base name already ends in suffix.
func ExpandInputs(args []string, suffix string) ([]string, error) {
	var out []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil || !fi.IsDir() {
			// Missing files are left for the prober to report.
			out = append(out, arg)
			continue
		}
		found, err := mediaInDir(arg, suffix)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no media files in %s", arg)
		}
		out = append(out, found...)
	}
	return out, nil
}

func mediaInDir(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !IsCandidate(name, suffix) {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, name))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		bi, bj := stem(candidates[i]), stem(candidates[j])
		if bi != bj {
			return bi < bj
		}
		return extPriority[strings.ToLower(filepath.Ext(candidates[i]))] < extPriority[strings.ToLower(filepath.Ext(candidates[j]))]
	})
	return candidates, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
