package speech

// SynthesisModel returns the model the client uses for text to speech.
func (c *Client) SynthesisModel() string {
	return c.synthesisModel
}

// TranscriptionModel returns the model the client uses for speech to text.
func (c *Client) TranscriptionModel() string {
	return c.transcriptionModel
}
