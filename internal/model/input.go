// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"
)

// InputType identifies the kind of raw payload a user submitted.
type InputType string

// Supported input types.
const (
	InputText     InputType = "text"
	InputImage    InputType = "image"
	InputAudio    InputType = "audio"
	InputDocument InputType = "document"
)

// legacyInputTypes maps the names older front ends still send.
var legacyInputTypes = map[string]InputType{
	"voice": InputAudio,
	"pdf":   InputDocument,
}

// ParseInputType converts a front-end supplied kind into an InputType.
// Unknown kinds are returned as-is so the ingestion layer can reject them
// with a proper error.
func ParseInputType(s string) InputType {
	kind := strings.ToLower(strings.TrimSpace(s))
	if mapped, ok := legacyInputTypes[kind]; ok {
		return mapped
	}
	return InputType(kind)
}

// IsValid reports whether the input type is one the pipeline knows about.
func (t InputType) IsValid() bool {
	switch t {
	case InputText, InputImage, InputAudio, InputDocument:
		return true
	default:
		return false
	}
}

// RawInput is a single user submission. It lives only for one request.
type RawInput struct {
	UserID  string    `json:"user_id"`
	Type    InputType `json:"type"`
	Payload []byte    `json:"-"`
}

// NewTextInput builds a RawInput carrying free-form text.
func NewTextInput(userID, text string) RawInput {
	return RawInput{UserID: userID, Type: InputText, Payload: []byte(text)}
}

func (r RawInput) String() string {
	return fmt.Sprintf("RawInput{user=%s type=%s bytes=%d}", r.UserID, r.Type, len(r.Payload))
}

// Ingested is the text recovered from a RawInput. ArchivePath names the
// stored copy of a binary payload and is empty when nothing was archived.
type Ingested struct {
	Text        string
	ArchivePath string
}
