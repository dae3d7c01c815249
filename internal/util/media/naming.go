// Package media derives artifact names from source files.
package media

import (
	"path/filepath"
	"strings"

	"voxtrim/internal/model"
	"voxtrim/internal/util"
)

// DefaultSuffix marks a downsized artifact.
const DefaultSuffix = "_downsized"

// OutputBasename returns the sanitized input base name (no directory, no
// extension) with suffix appended.
func OutputBasename(inputPath, suffix string) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return util.SanitizeFilename(base) + suffix
}

// OutputName returns the artifact file name for inputPath: the base name,
// the suffix and the extension of the codec profile.
func OutputName(inputPath, suffix string, profile model.CodecProfile) string {
	return OutputBasename(inputPath, suffix) + profile.Extension()
}

// OutputPath places OutputName in outDir. An empty outDir keeps the artifact
// next to its input.
func OutputPath(inputPath, outDir, suffix string, profile model.CodecProfile) string {
	if outDir == "" {
		outDir = filepath.Dir(inputPath)
	}
	return filepath.Join(outDir, OutputName(inputPath, suffix, profile))
}
