package speech_test

import (
	"testing"

	"github.com/speechrelay/speechrelay/internal/common/constants"
	"github.com/speechrelay/speechrelay/internal/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		config speech.Config

		wantErr                bool
		wantSynthesisModel     string
		wantTranscriptionModel string
	}{
		"Defaults applied": {
			config:                 speech.Config{APIKey: "sk-test"},
			wantSynthesisModel:     constants.DefaultSynthesisModel,
			wantTranscriptionModel: constants.DefaultTranscriptionModel,
		},
		"Custom models kept": {
			config: speech.Config{
				APIKey:             "sk-test",
				SynthesisModel:     "tts-1-hd",
				TranscriptionModel: "whisper-large",
			},
			wantSynthesisModel:     "tts-1-hd",
			wantTranscriptionModel: "whisper-large",
		},
		"Custom endpoint accepted": {
			config: speech.Config{
				APIKey:   "sk-test",
				Endpoint: "https://example.com/v1",
			},
			wantSynthesisModel:     constants.DefaultSynthesisModel,
			wantTranscriptionModel: constants.DefaultTranscriptionModel,
		},

		"Missing API key errors": {
			config:  speech.Config{},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client, err := speech.New(tc.config)
			if tc.wantErr {
				require.Error(t, err, "New should return an error")
				return
			}
			require.NoError(t, err, "New should not return an error")

			assert.Equal(t, tc.wantSynthesisModel, client.SynthesisModel(), "Unexpected synthesis model")
			assert.Equal(t, tc.wantTranscriptionModel, client.TranscriptionModel(), "Unexpected transcription model")
		})
	}
}
