// Package audio derives the stored artifacts (master WAV, preview MP3) from
// a raw generation result.
package audio

import (
	"bytes"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"sona/internal/domain"
	"sona/internal/infra"
)

// Files holds both artifacts derived from one generation result.
type Files struct {
	WAV []byte
	MP3 []byte
}

// PreviewEncoder converts master WAV bytes into the preview format. The
// encoding algorithm is an external collaborator: swapping in a real MP3
// encoder must not touch the worker.
type PreviewEncoder interface {
	Encode(wav []byte) ([]byte, error)
}

// CopyEncoder is the placeholder preview encoder: a byte-for-byte copy of
// the master. TODO: replace with a real MP3 encoder (lame binding or ffmpeg
// pipe) once one is picked.
type CopyEncoder struct{}

func (CopyEncoder) Encode(wav []byte) ([]byte, error) {
	if len(wav) == 0 {
		return nil, domain.ErrEmptyAudio
	}
	return bytes.Clone(wav), nil
}

// Processor validates generation output and derives the artifact pair.
type Processor struct {
	encoder PreviewEncoder
	logger  infra.Logger
}

func NewProcessor(encoder PreviewEncoder, logger infra.Logger) *Processor {
	if encoder == nil {
		encoder = CopyEncoder{}
	}
	return &Processor{encoder: encoder, logger: logger}
}

// Process checks the payload is plausibly audio and derives both artifacts.
// Unknown container signatures are accepted with a warning; only an empty
// payload or a failed preview encode is an error.
func (p *Processor) Process(data []byte, format string) (*Files, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyAudio
	}

	if format != "wav" {
		p.logger.Warn().Str("format", format).Msg("audio: non-wav payload stored as master without conversion")
	}
	if !KnownSignature(data) {
		detected := mimetype.Detect(data)
		p.logger.Warn().Str("detected", detected.String()).Msg("audio: unknown container signature, proceeding anyway")
	}

	preview, err := p.encoder.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	if len(preview) == 0 {
		return nil, fmt.Errorf("encode preview: %w", domain.ErrEmptyAudio)
	}

	return &Files{WAV: data, MP3: preview}, nil
}

// KnownSignature reports whether the payload starts with a recognizable
// audio container header: RIFF (WAV), ID3 (MP3) or an MPEG frame sync.
func KnownSignature(data []byte) bool {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return true
	}
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return true
	}
	return false
}
