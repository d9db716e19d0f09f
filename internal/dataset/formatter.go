// Package dataset turns stored chats into ShareGPT training archives.
package dataset

import (
	"github.com/pkg/errors"

	"gwi.com/chat-dataset/internal/store"
)

// ErrMalformedContent is returned when a message's parts cannot be decoded or
// hold no text segment. It aborts the export.
var ErrMalformedContent = errors.New("malformed message content")

const (
	FromHuman = "human"
	FromGPT   = "gpt"
)

// Turn is one ShareGPT conversation entry.
type Turn struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

// RoleMapper maps a stored message role to a ShareGPT speaker. Returning
// ok=false leaves the message out of the dataset.
type RoleMapper func(role string) (from string, ok bool)

// ShareGPTRoles is the two-party mapping: user is "human", every other role
// is "gpt". System and tool messages therefore show up as model turns.
func ShareGPTRoles(role string) (string, bool) {
	if role == store.RoleUser {
		return FromHuman, true
	}
	return FromGPT, true
}

// StrictShareGPTRoles maps user and assistant and drops every other role.
func StrictShareGPTRoles(role string) (string, bool) {
	switch role {
	case store.RoleUser:
		return FromHuman, true
	case store.RoleAssistant:
		return FromGPT, true
	default:
		return "", false
	}
}

// RoleMapperFor resolves a configured policy name; unknown names fall back
// to ShareGPTRoles.
func RoleMapperFor(policy string) RoleMapper {
	if policy == "strict" {
		return StrictShareGPTRoles
	}
	return ShareGPTRoles
}

type Formatter struct {
	Roles RoleMapper
}

// Format converts msg into a Turn. The second result is false when the role
// mapper excludes the message; content is still validated in that case.
func (f Formatter) Format(msg store.Message) (Turn, bool, error) {
	parts, err := store.DecodeParts(msg.Parts)
	if err != nil {
		return Turn{}, false, errors.Wrapf(ErrMalformedContent, "message %s: %v", msg.ID, err)
	}
	text, found := store.FirstText(parts)
	if !found {
		return Turn{}, false, errors.Wrapf(ErrMalformedContent, "message %s has no text part", msg.ID)
	}

	roles := f.Roles
	if roles == nil {
		roles = ShareGPTRoles
	}
	from, ok := roles(msg.Role)
	if !ok {
		return Turn{}, false, nil
	}
	return Turn{From: from, Value: text}, true, nil
}

// FormatAll formats messages in order. The first malformed message fails the
// whole batch.
func (f Formatter) FormatAll(messages []store.Message) ([]Turn, error) {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turn, ok, err := f.Format(msg)
		if err != nil {
			return nil, err
		}
		if ok {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}
