package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"voxtrim/internal/model"
	"voxtrim/internal/util"
)

// Namer hands out artifact paths for a session and never gives two distinct
// inputs the same one. Inputs that share a stem (talk.wav, talk.mp4) get the
// source extension folded in: talk_wav_downsized.m4a.
type Namer struct {
	outDir  string
	suffix  string
	profile model.CodecProfile

	mu      sync.Mutex
	byInput map[string]string
	owner   map[string]string // output path -> input
}

func NewNamer(outDir, suffix string, profile model.CodecProfile) *Namer {
	return &Namer{
		outDir:  outDir,
		suffix:  suffix,
		profile: profile,
		byInput: make(map[string]string),
		owner:   make(map[string]string),
	}
}

// Reserve assigns paths to a batch of inputs at once, so every member of a
// colliding group is disambiguated, not just the later ones. It fails
// without reserving anything when two inputs would still share a path.
func (n *Namer) Reserve(inputs ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var fresh []string
	seen := make(map[string]bool)
	groups := make(map[string]int) // default path -> fresh inputs wanting it
	for _, in := range inputs {
		in = filepath.Clean(in)
		if _, ok := n.byInput[in]; ok || seen[in] {
			continue
		}
		seen[in] = true
		fresh = append(fresh, in)
		groups[OutputPath(in, n.outDir, n.suffix, n.profile)]++
	}

	assigned := make(map[string]string, len(fresh))
	owner := make(map[string]string, len(fresh))
	for _, in := range fresh {
		p := OutputPath(in, n.outDir, n.suffix, n.profile)
		if _, taken := n.owner[p]; taken || groups[p] > 1 {
			p = n.qualifiedPath(in)
		}
		if other, ok := n.owner[p]; ok {
			return fmt.Errorf("%s and %s would both be written to %s", other, in, p)
		}
		if other, ok := owner[p]; ok {
			return fmt.Errorf("%s and %s would both be written to %s", other, in, p)
		}
		assigned[in] = p
		owner[p] = in
	}
	for in, p := range assigned {
		n.byInput[in] = p
		n.owner[p] = in
	}
	return nil
}

// OutputPath returns the reserved path for input, reserving one first when
// input has not been seen.
func (n *Namer) OutputPath(input string) (string, error) {
	if err := n.Reserve(input); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.byInput[filepath.Clean(input)], nil
}

func (n *Namer) qualifiedPath(input string) string {
	base := filepath.Base(input)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if ext != "" {
		stem += "_" + ext
	}
	dir := n.outDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, util.SanitizeFilename(stem)+n.suffix+n.profile.Extension())
}
