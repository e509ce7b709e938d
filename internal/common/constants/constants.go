// Package constants is responsible for defining the constants used in the application.
package constants

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// WebServiceCmdName is the name of the web service command.
	WebServiceCmdName = "speechrelay-web-service"

	// ServiceName is the human readable name of the service, reported by the root endpoint.
	ServiceName = "OpenAI Speech API"
)

// Upstream defaults.
const (
	// DefaultOpenAIEndpoint is the public OpenAI API endpoint.
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"

	// DefaultSynthesisModel is the default text to speech model.
	DefaultSynthesisModel = "tts-1"

	// DefaultTranscriptionModel is the default speech to text model.
	DefaultTranscriptionModel = "whisper-1"

	// DefaultVoice is the voice used when a request does not name one.
	DefaultVoice = "alloy"

	// DefaultAudioFormat is the synthesis output format used when a request does not name one.
	DefaultAudioFormat = "mp3"
)

// DefaultVoices are the synthesis voices accepted when the configuration does not restrict them.
var DefaultVoices = []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "shimmer"}

// DefaultFileTypes are the audio container types accepted for transcription when the
// configuration does not restrict them.
var DefaultFileTypes = []string{"flac", "m4a", "mp3", "mp4", "mpeg", "mpga", "oga", "ogg", "wav", "webm"}
