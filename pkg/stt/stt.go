// Package stt transcribes recorded speech.
//
// The [OpenAI] transcriber speaks the OpenAI audio transcription API, which
// both the hosted whisper-1 model and local faster-whisper servers expose.
// [Fallback] combines a local and a cloud transcriber.
package stt

import (
	"bytes"
	"context"
	"errors"
)

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// ErrEmptyAudio is returned for an empty recording.
var ErrEmptyAudio = errors.New("stt: empty audio")

// DefaultFormat is assumed when DetectFormat does not recognize the audio;
// browsers record webm.
const DefaultFormat = "webm"

var (
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicID3  = []byte("ID3")
	magicOgg  = []byte("OggS")
	magicEBML = []byte{0x1A, 0x45, 0xDF, 0xA3}
	magicFLAC = []byte("fLaC")
	magicFtyp = []byte("ftyp")
)

// DetectFormat sniffs the container format of audio from its leading
// bytes. It returns the file extension and whether the format was
// recognized.
func DetectFormat(audio []byte) (string, bool) {
	if len(audio) < 12 {
		return "", false
	}
	switch {
	case bytes.HasPrefix(audio, magicRIFF) && bytes.Equal(audio[8:12], magicWAVE):
		return "wav", true
	case bytes.HasPrefix(audio, magicID3), audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return "mp3", true
	case bytes.HasPrefix(audio, magicOgg):
		return "ogg", true
	case bytes.HasPrefix(audio, magicEBML):
		return "webm", true
	case bytes.HasPrefix(audio, magicFLAC):
		return "flac", true
	case bytes.Equal(audio[4:8], magicFtyp):
		return "m4a", true
	}
	return "", false
}

// ContentType returns the MIME type for a DetectFormat extension.
func ContentType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "m4a":
		return "audio/mp4"
	default:
		return "audio/webm"
	}
}
