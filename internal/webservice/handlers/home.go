package handlers

import (
	"net/http"

	"github.com/speechrelay/speechrelay/internal/common/constants"
	"github.com/speechrelay/speechrelay/internal/webservice/metrics"
)

// HomeHandler handles requests to the root endpoint with a description of the service.
func HomeHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"app": constants.ServiceName,
		"endpoints": map[string]any{
			"text-to-speech": map[string]any{
				"url":         "/text-to-speech",
				"method":      http.MethodPost,
				"description": "Convert text to speech",
				"body": map[string]string{
					"text":  "Text to convert to speech",
					"voice": constants.DefaultVoice + " (optional)",
				},
			},
			"speech-to-text": map[string]any{
				"url":         "/speech-to-text",
				"method":      http.MethodPost,
				"description": "Convert speech to text",
				"form-data": map[string]string{
					"audio_file": "Audio file to transcribe",
				},
				"or-json": map[string]string{
					"audio_base64": "Base64 encoded audio string",
					"file_type":    constants.DefaultAudioFormat + " (optional)",
				},
			},
		},
	})
}
