package prober

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voxtrim/internal/util"
)

type fakeRunner struct {
	stdout string
	stderr string
	err    error

	gotSpec util.CmdSpec
}

func (f *fakeRunner) Run(_ context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	f.gotSpec = spec
	res := util.CmdResult{Stdout: []byte(f.stdout), Stderr: []byte(f.stderr)}
	if f.err != nil {
		res.Code = 1
		res.Err = f.err
		return res, f.err
	}
	return res, nil
}

const mp4JSON = `{
  "programs": [],
  "streams": [
    {"codec_type": "video", "codec_name": "h264"},
    {"codec_type": "audio", "codec_name": "aac", "channels": 2, "sample_rate": "44100"}
  ],
  "format": {"duration": "3600.500000", "bit_rate": "1250000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestProbe_SelectsAudioStream(t *testing.T) {
	fr := &fakeRunner{stdout: mp4JSON}
	p := New("", WithRunner(fr))

	info, err := p.Probe(context.Background(), "/media/lecture.mp4")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.DurationSec != 3600.5 {
		t.Errorf("DurationSec = %v, want 3600.5", info.DurationSec)
	}
	if info.AudioCodec != "aac" || info.Channels != 2 || info.SampleRateHz != 44100 {
		t.Errorf("audio stream = %q/%d/%d, want aac/2/44100", info.AudioCodec, info.Channels, info.SampleRateHz)
	}
	if info.OverallBitrateBps != 1250000 {
		t.Errorf("OverallBitrateBps = %d", info.OverallBitrateBps)
	}
	if info.ContainerFormat != "mov,mp4,m4a,3gp,3g2,mj2" {
		t.Errorf("ContainerFormat = %q", info.ContainerFormat)
	}

	if fr.gotSpec.Path != "ffprobe" {
		t.Errorf("binary = %q, want ffprobe", fr.gotSpec.Path)
	}
	args := strings.Join(fr.gotSpec.Args, " ")
	for _, want := range []string{"-v error", "-of json", "format=duration,bit_rate,format_name", "stream=codec_type,codec_name,channels,sample_rate"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if last := fr.gotSpec.Args[len(fr.gotSpec.Args)-1]; last != "/media/lecture.mp4" {
		t.Errorf("last arg = %q, want input path", last)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		wantCodec string
		wantCh    int
		wantSR    int
		wantFmt   string
		wantBps   int
	}{
		{
			name:      "falls back to first stream",
			json:      `{"streams":[{"codec_type":"","codec_name":"opus","channels":1,"sample_rate":"48000"}],"format":{"duration":"12.0","format_name":"ogg"}}`,
			wantCodec: "opus", wantCh: 1, wantSR: 48000, wantFmt: "ogg",
		},
		{
			name:      "no streams",
			json:      `{"streams":[],"format":{"duration":"5"}}`,
			wantCodec: Unknown, wantFmt: Unknown,
		},
		{
			name:      "missing optional fields",
			json:      `{"streams":[{"codec_type":"audio"}],"format":{"duration":"5","bit_rate":"N/A"}}`,
			wantCodec: Unknown, wantFmt: Unknown,
		},
		{
			name:      "second audio ignored",
			json:      `{"streams":[{"codec_type":"audio","codec_name":"mp3","channels":2,"sample_rate":"22050"},{"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"1","bit_rate":"64000","format_name":"mp3"}}`,
			wantCodec: "mp3", wantCh: 2, wantSR: 22050, wantFmt: "mp3", wantBps: 64000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Parse([]byte(tt.json))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if info.AudioCodec != tt.wantCodec || info.Channels != tt.wantCh || info.SampleRateHz != tt.wantSR {
				t.Errorf("stream = %q/%d/%d, want %q/%d/%d", info.AudioCodec, info.Channels, info.SampleRateHz, tt.wantCodec, tt.wantCh, tt.wantSR)
			}
			if info.ContainerFormat != tt.wantFmt {
				t.Errorf("ContainerFormat = %q, want %q", info.ContainerFormat, tt.wantFmt)
			}
			if info.OverallBitrateBps != tt.wantBps {
				t.Errorf("OverallBitrateBps = %d, want %d", info.OverallBitrateBps, tt.wantBps)
			}
		})
	}
}

func TestProbe_Failures(t *testing.T) {
	tests := []struct {
		name         string
		runner       *fakeRunner
		wantDuration bool
	}{
		{name: "tool fails", runner: &fakeRunner{err: errors.New("exit status 1"), stderr: "No such file or directory"}},
		{name: "not json", runner: &fakeRunner{stdout: "garbage"}},
		{name: "zero duration", runner: &fakeRunner{stdout: `{"format":{"duration":"0.000000"}}`}, wantDuration: true},
		{name: "negative duration", runner: &fakeRunner{stdout: `{"format":{"duration":"-3"}}`}, wantDuration: true},
		{name: "missing duration", runner: &fakeRunner{stdout: `{"format":{}}`}, wantDuration: true},
		{name: "unparsable duration", runner: &fakeRunner{stdout: `{"format":{"duration":"N/A"}}`}, wantDuration: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("ffprobe", WithRunner(tt.runner))
			info, err := p.Probe(context.Background(), "in.wav")
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ProbeError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ProbeError", err)
			}
			if pe.Path != "in.wav" {
				t.Errorf("Path = %q", pe.Path)
			}
			if got := errors.Is(err, ErrInvalidDuration); got != tt.wantDuration {
				t.Errorf("errors.Is(ErrInvalidDuration) = %v, want %v", got, tt.wantDuration)
			}
			if info.DurationSec != 0 {
				t.Errorf("partial MediaInfo returned: %+v", info)
			}
		})
	}
}

func TestProbe_ToolStderrInError(t *testing.T) {
	p := New("ffprobe", WithRunner(&fakeRunner{err: errors.New("exit status 1"), stderr: "in.wav: Invalid data found when processing input\n"}))
	_, err := p.Probe(context.Background(), "in.wav")
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error = %v, want ffprobe stderr included", err)
	}
}

func TestProbeDuration(t *testing.T) {
	fr := &fakeRunner{stdout: "125.250000\n"}
	p := New("/opt/ffprobe", WithRunner(fr))

	d, err := p.ProbeDuration(context.Background(), "a.mp3")
	if err != nil {
		t.Fatalf("ProbeDuration() error = %v", err)
	}
	if d != 125.25 {
		t.Errorf("duration = %v, want 125.25", d)
	}
	if got := strings.Join(fr.gotSpec.Args, " "); got != "-v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 a.mp3" {
		t.Errorf("args = %q", got)
	}

	p = New("", WithRunner(&fakeRunner{stdout: "N/A\n"}))
	if _, err := p.ProbeDuration(context.Background(), "a.mp3"); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("error = %v, want ErrInvalidDuration", err)
	}
}
