package playbook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownDeltaType is returned when a delta envelope names a type
// outside the closed union.
var ErrUnknownDeltaType = errors.New("unknown delta type")

// deltaEnvelope is the on-disk form of a delta: the variant tag plus the
// variant's own fields, flattened.
type deltaEnvelope struct {
	Type DeltaKind `json:"type"`
}

// DecodeDeltas parses a JSON array of tagged delta objects, e.g.
//
//	[{"type":"add","content":"..."}, {"type":"helpful","bulletId":"..."}]
//
// An unknown type fails the whole decode so a typo cannot silently drop a
// proposed change.
func DecodeDeltas(data []byte) ([]Delta, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decoding delta array: %w", err)
	}

	deltas := make([]Delta, 0, len(raws))
	for i, raw := range raws {
		var env deltaEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decoding delta %d envelope: %w", i, err)
		}
		d, err := decodeDelta(env.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("decoding delta %d: %w", i, err)
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

func decodeDelta(kind DeltaKind, raw json.RawMessage) (Delta, error) {
	switch kind {
	case DeltaAdd:
		var d AddDelta
		err := json.Unmarshal(raw, &d)
		return d, err
	case DeltaHelpful:
		var d HelpfulDelta
		err := json.Unmarshal(raw, &d)
		return d, err
	case DeltaHarmful:
		var d HarmfulDelta
		err := json.Unmarshal(raw, &d)
		return d, err
	case DeltaReplace:
		var d ReplaceDelta
		err := json.Unmarshal(raw, &d)
		return d, err
	case DeltaDeprecate:
		var d DeprecateDelta
		err := json.Unmarshal(raw, &d)
		return d, err
	case DeltaMerge:
		var d MergeDelta
		err := json.Unmarshal(raw, &d)
		return d, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeltaType, kind)
	}
}

// EncodeDeltas renders deltas in the same tagged form DecodeDeltas reads.
func EncodeDeltas(deltas []Delta) ([]byte, error) {
	out := make([]map[string]any, 0, len(deltas))
	for i, d := range deltas {
		body, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encoding delta %d: %w", i, err)
		}
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("flattening delta %d: %w", i, err)
		}
		m["type"] = d.Kind()
		out = append(out, m)
	}
	return json.Marshal(out)
}
