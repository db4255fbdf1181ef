package domain

import "time"

// CaptionTTL is how long a caption stays visible unless superseded by the same owner.
const CaptionTTL = 5 * time.Second

type Caption struct {
	OwnerID          ParticipantID `json:"ownerId"`
	OwnerDisplayName string        `json:"ownerDisplayName"`
	Original         string        `json:"original"`
	Translated       string        `json:"translated,omitempty"`
	TargetLanguage   string        `json:"targetLanguage,omitempty"`
	IsFinal          bool          `json:"isFinal"`
	Timestamp        time.Time     `json:"timestamp"`
}

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
