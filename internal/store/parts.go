package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// DecodeParts parses a message's stored parts column.
func DecodeParts(raw string) ([]Part, error) {
	var parts []Part
	if err := json.Unmarshal([]byte(raw), &parts); err != nil {
		return nil, errors.Wrap(err, "decoding message parts")
	}
	return parts, nil
}

// FirstText returns the text of the first part typed "text".
func FirstText(parts []Part) (string, bool) {
	for _, p := range parts {
		if p.Type == "text" {
			return p.Text, true
		}
	}
	return "", false
}
