package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnclassified marks a frame that parsed as JSON but matched no known
// message shape. The transport publishes such frames on the raw channel
// only; they never become typed messages.
var ErrUnclassified = errors.New("wire: unclassified payload")

// Normalize parses a raw frame and classifies it into a typed Message.
//
// Classification is an ordered set of shape checks:
//
//  1. A payload with a string "type" field is a typed message — unless the
//     string itself looks like a serialized JSON object, in which case the
//     server double-encoded a full message into the type field and the
//     embedded object is normalized instead (one level deep).
//  2. A payload with no "type" but shaped like an agent state (string
//     behaviorType and projectType, at top level or under a "state" key)
//     is synthesized into a canonical state_snapshot message.
//  3. Anything else is ErrUnclassified.
//
// A frame that is not valid JSON returns the parse error.
func Normalize(data []byte) (*Message, error) {
	return normalize(data, true)
}

func normalize(data []byte, allowEmbedded bool) (*Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}

	if rawType, ok := probe["type"]; ok {
		var typeStr string
		if err := json.Unmarshal(rawType, &typeStr); err == nil {
			if allowEmbedded && looksLikeJSONObject(typeStr) {
				// Server bug: a whole message double-encoded into the
				// type field. Unwrap exactly once; if the embedded
				// object does not classify, the outer frame is
				// unclassified rather than a parse failure.
				msg, err := normalize([]byte(typeStr), false)
				if err != nil {
					return nil, ErrUnclassified
				}
				return msg, nil
			}
			return decodeTyped(data, typeStr)
		}
		return nil, ErrUnclassified
	}

	if state, ok := sniffAgentState(data, probe); ok {
		return &Message{Type: TypeStateSnapshot, State: state, Raw: cloneRaw(data)}, nil
	}

	return nil, ErrUnclassified
}

func decodeTyped(data []byte, typeStr string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ErrUnclassified
	}
	msg.Type = typeStr
	msg.Raw = cloneRaw(data)
	return &msg, nil
}

// sniffAgentState recovers an envelope-less agent state: a payload that has
// string behaviorType and projectType either at top level or nested under a
// "state" key.
func sniffAgentState(data []byte, probe map[string]json.RawMessage) (*AgentState, bool) {
	if rawState, ok := probe["state"]; ok {
		var state AgentState
		if err := json.Unmarshal(rawState, &state); err == nil && state.BehaviorType != "" && state.ProjectType != "" {
			return &state, true
		}
	}

	var state AgentState
	if err := json.Unmarshal(data, &state); err == nil && state.BehaviorType != "" && state.ProjectType != "" {
		return &state, true
	}
	return nil, false
}

func looksLikeJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

func cloneRaw(data []byte) json.RawMessage {
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return raw
}
