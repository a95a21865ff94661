package palette

import (
	"palette/internal/config"
	"palette/internal/domain"
)

// BaseMetadata is the metadata every strategy starts from.
func BaseMetadata(rt config.Runtime) domain.ConversationMetadata {
	md := domain.ConversationMetadata{
		Text2TextModel:    rt.Model,
		Temperature:       rt.Temperature,
		ChatHistoryWindow: rt.HistoryWindow,
	}
	if len(rt.Files) > 0 {
		md.Files = append([]string(nil), rt.Files...)
	}
	return md
}

// Envelope builds the response returned to the caller.
func Envelope(sessionID, content string, md domain.ConversationMetadata) domain.ResponseEnvelope {
	return domain.ResponseEnvelope{
		SessionID: sessionID,
		Type:      domain.EnvelopeTypeText,
		Content:   content,
		Metadata:  md,
	}
}
