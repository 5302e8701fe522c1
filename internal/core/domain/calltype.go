package domain

import "fmt"

// CallType identifies the kind of provider operation a payload is prepared for.
type CallType string

const (
	CallCompletion         CallType = "completion"
	CallTextCompletion     CallType = "text_completion"
	CallEmbeddings         CallType = "embeddings"
	CallImageGeneration    CallType = "image_generation"
	CallModeration         CallType = "moderation"
	CallAudioTranscription CallType = "audio_transcription"
)

// CallTypes lists every supported call type.
var CallTypes = []CallType{
	CallCompletion,
	CallTextCompletion,
	CallEmbeddings,
	CallImageGeneration,
	CallModeration,
	CallAudioTranscription,
}

// ParseCallType validates a call type name.
func ParseCallType(s string) (CallType, error) {
	for _, ct := range CallTypes {
		if string(ct) == s {
			return ct, nil
		}
	}
	return "", fmt.Errorf("unknown call type %q", s)
}

func (c CallType) String() string {
	return string(c)
}
