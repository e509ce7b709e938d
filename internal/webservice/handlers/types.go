package handlers

import (
	"context"
	"io"
	"time"

	"github.com/speechrelay/speechrelay/internal/speech"
)

// ConfigProvider is an interface that defines the configuration access methods used by the handlers.
type ConfigProvider interface {
	IsVoiceAllowed(string) bool    // IsVoiceAllowed checks if a synthesis voice is allowed based on the present configuration state.
	IsFileTypeAllowed(string) bool // IsFileTypeAllowed checks if an audio file type is allowed based on the present configuration state.
}

// Synthesizer converts text to an audio stream.
type Synthesizer interface {
	Synthesize(context.Context, speech.SynthesisRequest) (io.ReadCloser, error)
}

// Transcriber converts an audio payload to text.
type Transcriber interface {
	Transcribe(context.Context, speech.TranscriptionRequest) (string, error)
}

// Opts holds the static settings shared by the speech handlers.
type Opts struct {
	MaxBodyBytes    int64
	UpstreamTimeout time.Duration

	SynthesisModel     string
	TranscriptionModel string
}
