package encoder

import (
	"fmt"
	"strconv"

	"voxtrim/internal/model"
)

// BuildArgs constructs the ffmpeg arguments for an audio-only encode:
//
//	-i <input> -vn -c:a <codec> -ac <n> -ar <hz> -b:a <kbps>k -y <output>
//
// Video is always dropped and the destination is always overwritten.
func BuildArgs(inputPath, outputPath string, s model.TranscodeSettings) []string {
	return []string{
		"-i", inputPath,
		"-vn",
		"-c:a", s.Profile.Codec(),
		"-ac", strconv.Itoa(s.Channels),
		"-ar", strconv.Itoa(s.SampleRateHz),
		"-b:a", fmt.Sprintf("%dk", s.BitrateKbps),
		"-y",
		outputPath,
	}
}
