package audio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"sona/internal/domain"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestProcessDerivesBothArtifacts(t *testing.T) {
	wav := []byte("RIFF1234WAVEfmt data")
	files, err := NewProcessor(nil, discardLogger()).Process(wav, "wav")
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !bytes.Equal(files.WAV, wav) {
		t.Fatal("master must be the original bytes")
	}
	if !bytes.Equal(files.MP3, wav) {
		t.Fatal("copy encoder preview must mirror the master")
	}
	// The preview must not alias the master buffer.
	files.MP3[0] = 'X'
	if files.WAV[0] == 'X' {
		t.Fatal("preview aliases master bytes")
	}
}

func TestProcessRejectsEmptyPayload(t *testing.T) {
	_, err := NewProcessor(nil, discardLogger()).Process(nil, "wav")
	if !errors.Is(err, domain.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestProcessAcceptsUnknownSignature(t *testing.T) {
	files, err := NewProcessor(nil, discardLogger()).Process([]byte("not really audio"), "wav")
	if err != nil {
		t.Fatalf("unknown signatures must be accepted, got %v", err)
	}
	if len(files.WAV) == 0 || len(files.MP3) == 0 {
		t.Fatal("artifacts missing")
	}
}

type failingEncoder struct{}

func (failingEncoder) Encode([]byte) ([]byte, error) {
	return nil, errors.New("encoder broke")
}

func TestProcessSurfacesEncoderFailure(t *testing.T) {
	_, err := NewProcessor(failingEncoder{}, discardLogger()).Process([]byte("RIFFdata"), "wav")
	if err == nil || !strings.Contains(err.Error(), "encoder broke") {
		t.Fatalf("expected encoder failure, got %v", err)
	}
}

func TestKnownSignature(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want bool
	}{
		{"wav riff", []byte("RIFFxxxxWAVE"), true},
		{"mp3 id3", []byte("ID3\x04rest"), true},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90}, true},
		{"sync needs high bits", []byte{0xFF, 0x1B}, false},
		{"garbage", []byte("hello"), false},
		{"short", []byte{0xFF}, false},
	}
	for _, tc := range cases {
		if got := KnownSignature(tc.data); got != tc.want {
			t.Fatalf("%s: KnownSignature = %v, want %v", tc.name, got, tc.want)
		}
	}
}
