// Package encoder applies the optional terminal Base64 transform to a
// pipeline's final artifact.
package encoder

import (
	"encoding/base64"

	"github.com/tailored-agentic-units/obfusengine/pipeline"
)

// Encode returns the standard Base64 encoding of text.
func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// Decode reverses Encode.
func Decode(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Apply sets the session deliverable. With enabled false the deliverable is
// the final artifact unchanged.
func Apply(s *pipeline.Session, enabled bool) {
	if !enabled {
		s.SetDeliverable(s.Final(), false)
		return
	}
	s.SetDeliverable(Encode(s.Final()), true)
}
