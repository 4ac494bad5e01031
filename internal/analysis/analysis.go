// Package analysis talks to the generative model that reads uploaded
// documents and drafts treatment plan boards.
package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("analysis: empty model response")
	// ErrInvalidDocument marks an upload that cannot be sent to the model.
	ErrInvalidDocument = errors.New("analysis: invalid document")
)

// Document is an uploaded file.
type Document struct {
	MIMEType string
	Data     []byte
}

// DecodeDocument builds a Document from a base64 body. A data: URL prefix
// is accepted and its media type used when mimeType is empty.
func DecodeDocument(mimeType, encoded string) (Document, error) {
	encoded = strings.TrimSpace(encoded)
	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return Document{}, fmt.Errorf("%w: bad data url", ErrInvalidDocument)
		}
		if mimeType == "" {
			mimeType, _, _ = strings.Cut(meta, ";")
		}
		encoded = payload
	}
	if strings.TrimSpace(mimeType) == "" {
		return Document{}, fmt.Errorf("%w: mime type is required", ErrInvalidDocument)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(data) == 0 {
		return Document{}, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	return Document{MIMEType: mimeType, Data: data}, nil
}

// Analyzer turns documents into findings and findings into plan boards.
// GeneratePlan returns untrusted text that should parse as a board snapshot.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, doc Document) (string, error)
	GeneratePlan(ctx context.Context, analysis string) (string, error)
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// reply, returning the outermost JSON object.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
