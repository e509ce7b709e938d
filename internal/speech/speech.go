// Package speech wraps the OpenAI audio APIs used by the service: speech
// synthesis (text to speech) and transcription (speech to text).
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/speechrelay/speechrelay/internal/common/constants"
)

// Config holds the settings needed to reach the upstream API.
type Config struct {
	Endpoint string
	APIKey   string

	SynthesisModel     string
	TranscriptionModel string
}

// Client talks to the OpenAI audio endpoints.
type Client struct {
	client *azopenai.Client

	synthesisModel     string
	transcriptionModel string
}

// SynthesisRequest describes one text to speech call.
type SynthesisRequest struct {
	Text   string
	Voice  string
	Format string
}

// TranscriptionRequest describes one speech to text call.
type TranscriptionRequest struct {
	Audio    []byte
	Filename string
}

// New creates a Client for the configured endpoint.
//
// The API key is required. Endpoint and models fall back to the service defaults.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = constants.DefaultOpenAIEndpoint
	}
	if cfg.SynthesisModel == "" {
		cfg.SynthesisModel = constants.DefaultSynthesisModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = constants.DefaultTranscriptionModel
	}

	keyCredential := azcore.NewKeyCredential(cfg.APIKey)
	client, err := azopenai.NewClientForOpenAI(cfg.Endpoint, keyCredential, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAI client: %v", err)
	}

	return &Client{
		client:             client,
		synthesisModel:     cfg.SynthesisModel,
		transcriptionModel: cfg.TranscriptionModel,
	}, nil
}

// Synthesize converts text to speech and returns the raw audio stream.
// The caller owns the returned reader and must close it.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (io.ReadCloser, error) {
	if req.Voice == "" {
		req.Voice = constants.DefaultVoice
	}
	if req.Format == "" {
		req.Format = constants.DefaultAudioFormat
	}

	resp, err := c.client.GenerateSpeechFromText(ctx, azopenai.SpeechGenerationOptions{
		DeploymentName: to.Ptr(c.synthesisModel),
		Input:          to.Ptr(req.Text),
		Voice:          to.Ptr(azopenai.SpeechVoice(req.Voice)),
		ResponseFormat: to.Ptr(azopenai.SpeechGenerationResponseFormat(req.Format)),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis request failed: %w", err)
	}

	return resp.Body, nil
}

// Transcribe converts speech to text and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	resp, err := c.client.GetAudioTranscription(ctx, azopenai.AudioTranscriptionOptions{
		DeploymentName: to.Ptr(c.transcriptionModel),
		File:           req.Audio,
		Filename:       to.Ptr(req.Filename),
		ResponseFormat: to.Ptr(azopenai.AudioTranscriptionFormatJSON),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	if resp.Text == nil {
		return "", errors.New("no transcript received from upstream")
	}
	return *resp.Text, nil
}
