// Package handlers provides HTTP handlers for the server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/speechrelay/speechrelay/internal/common/constants"
	"github.com/speechrelay/speechrelay/internal/speech"
	"github.com/speechrelay/speechrelay/internal/usage"
	"github.com/speechrelay/speechrelay/internal/webservice/metrics"
)

// Synthesis is a handler converting text to speech via the upstream API.
type Synthesis struct {
	speech Synthesizer
	config ConfigProvider
	usage  usage.Recorder
	opts   Opts
}

type synthesisRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

// NewSynthesis creates a new Synthesis handler.
func NewSynthesis(s Synthesizer, cfg ConfigProvider, rec usage.Recorder, opts Opts) *Synthesis {
	if opts.SynthesisModel == "" {
		opts.SynthesisModel = constants.DefaultSynthesisModel
	}
	return &Synthesis{
		speech: s,
		config: cfg,
		usage:  rec,
		opts:   opts,
	}
}

// ServeHTTP handles incoming text to speech requests.
func (h *Synthesis) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := uuid.New().String()
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slog.Info("Request recv'd", "req_id", reqID, "endpoint", "text-to-speech")

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	var req synthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			slog.Error("Request body too large", "req_id", reqID, "limit", h.opts.MaxBodyBytes)
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		slog.Error("Invalid JSON body", "req_id", reqID, "err", err)
		return
	}

	if req.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "missing 'text' parameter")
		slog.Error("Missing text parameter", "req_id", reqID)
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = constants.DefaultVoice
	}
	if !h.config.IsVoiceAllowed(voice) {
		writeJSONError(w, http.StatusForbidden, fmt.Sprintf("voice %q is not allowed", voice))
		slog.Error("Disallowed voice requested", "req_id", reqID, "voice", voice)
		return
	}

	format := req.Format
	if format == "" {
		format = constants.DefaultAudioFormat
	}
	contentType, ok := audioContentTypes[format]
	if !ok {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown audio format %q", format))
		slog.Error("Unknown audio format requested", "req_id", reqID, "format", format)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.UpstreamTimeout)
	defer cancel()
	audio, err := h.speech.Synthesize(ctx, speech.SynthesisRequest{
		Text:   req.Text,
		Voice:  voice,
		Format: format,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		slog.Error("Synthesis failed", "req_id", reqID, "voice", voice, "err", err)
		h.record(reqID, start, voice, int64(len(req.Text)), 0, http.StatusBadGateway)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=speech.%s", format))
	written, err := io.Copy(w, audio)
	if err != nil {
		// Headers are already sent, nothing to do but log.
		slog.Error("Failed streaming audio to client", "req_id", reqID, "written", written, "err", err)
	}

	slog.Info("Synthesis served", "req_id", reqID, "voice", voice, "bytes", written, "duration", time.Since(start))
	h.record(reqID, start, voice, int64(len(req.Text)), written, http.StatusOK)
}

func (h *Synthesis) record(reqID string, start time.Time, voice string, reqBytes, respBytes int64, status int) {
	h.usage.Record(usage.Record{
		RequestID:     reqID,
		EntryTime:     start,
		Endpoint:      "text-to-speech",
		Model:         h.opts.SynthesisModel,
		Voice:         voice,
		RequestBytes:  reqBytes,
		ResponseBytes: respBytes,
		Duration:      time.Since(start),
		Status:        status,
	})
}
