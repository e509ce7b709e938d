package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/speechrelay/speechrelay/internal/common/constants"
	"github.com/speechrelay/speechrelay/internal/speech"
	"github.com/speechrelay/speechrelay/internal/usage"
	"github.com/speechrelay/speechrelay/internal/webservice/metrics"
)

// Transcription is a handler converting speech to text via the upstream API.
//
// It accepts either a multipart form with an "audio_file" field, or a JSON
// body with a base64 encoded payload. Responses carry permissive CORS headers
// so browser dashboards can call the endpoint directly.
type Transcription struct {
	speech Transcriber
	config ConfigProvider
	usage  usage.Recorder
	opts   Opts
}

type transcriptionRequest struct {
	AudioBase64 string `json:"audio_base64"`
	FileType    string `json:"file_type"`
}

// NewTranscription creates a new Transcription handler.
func NewTranscription(t Transcriber, cfg ConfigProvider, rec usage.Recorder, opts Opts) *Transcription {
	if opts.TranscriptionModel == "" {
		opts.TranscriptionModel = constants.DefaultTranscriptionModel
	}
	return &Transcription{
		speech: t,
		config: cfg,
		usage:  rec,
		opts:   opts,
	}
}

// ServeHTTP handles incoming speech to text requests.
func (h *Transcription) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := uuid.New().String()
	start := time.Now()

	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slog.Info("Request recv'd", "req_id", reqID, "endpoint", "speech-to-text")

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	audio, filename, status, err := h.readAudio(r)
	if err != nil {
		writeJSONError(w, status, err.Error())
		slog.Error("Failed to read audio payload", "req_id", reqID, "status", status, "err", err)
		return
	}

	fileType := strings.TrimPrefix(filepath.Ext(filename), ".")
	if !h.config.IsFileTypeAllowed(fileType) {
		writeJSONError(w, http.StatusForbidden, fmt.Sprintf("audio file type %q is not allowed", fileType))
		slog.Error("Disallowed audio file type", "req_id", reqID, "file_type", fileType)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.UpstreamTimeout)
	defer cancel()
	text, err := h.speech.Transcribe(ctx, speech.TranscriptionRequest{
		Audio:    audio,
		Filename: filename,
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
			"type":  fmt.Sprintf("%T", err),
		})
		slog.Error("Transcription failed", "req_id", reqID, "err", err)
		h.record(reqID, start, int64(len(audio)), 0, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
	slog.Info("Transcription served", "req_id", reqID, "audio_bytes", len(audio), "duration", time.Since(start))
	h.record(reqID, start, int64(len(audio)), int64(len(text)), http.StatusOK)
}

// readAudio extracts the audio payload from either a multipart form or a JSON body.
// It returns the audio bytes, a filename carrying the file type, and on failure
// the HTTP status to respond with.
func (h *Transcription) readAudio(r *http.Request) (audio []byte, filename string, status int, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, "", http.StatusRequestEntityTooLarge, errors.New("request body too large")
			}
			return nil, "", http.StatusBadRequest, errors.New("missing 'audio_file' form field")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", http.StatusBadRequest, fmt.Errorf("failed to read uploaded file: %v", err)
		}

		filename = filepath.Base(header.Filename)
		if filepath.Ext(filename) == "" {
			filename += "." + constants.DefaultAudioFormat
		}
		return data, filename, http.StatusOK, nil

	case mediaType == "application/json":
		var req transcriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, "", http.StatusRequestEntityTooLarge, errors.New("request body too large")
			}
			return nil, "", http.StatusBadRequest, errors.New("invalid JSON body")
		}
		if req.AudioBase64 == "" {
			break
		}

		data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			return nil, "", http.StatusBadRequest, errors.New("invalid base64 audio payload")
		}

		fileType := req.FileType
		if fileType == "" {
			fileType = constants.DefaultAudioFormat
		}
		return data, "audio." + fileType, http.StatusOK, nil
	}

	return nil, "", http.StatusBadRequest,
		errors.New("no audio file provided, send a form with 'audio_file' or JSON with 'audio_base64'")
}

func (h *Transcription) record(reqID string, start time.Time, reqBytes, respBytes int64, status int) {
	h.usage.Record(usage.Record{
		RequestID:     reqID,
		EntryTime:     start,
		Endpoint:      "speech-to-text",
		Model:         h.opts.TranscriptionModel,
		RequestBytes:  reqBytes,
		ResponseBytes: respBytes,
		Duration:      time.Since(start),
		Status:        status,
	})
}
