package document

import (
	"encoding/json"
	"fmt"
)

// AddonData is an opaque per-addon envelope. Keys other than type and data
// (an instancing addon's "instances", for example) are kept in Extra and
// written back unchanged.
type AddonData struct {
	Type  string
	Data  map[string]json.RawMessage
	Extra map[string]json.RawMessage
}

// MarshalJSON writes type, data and every extra key.
func (a AddonData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+2)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["type"] = a.Type
	if a.Data == nil {
		out["data"] = map[string]json.RawMessage{}
	} else {
		out["data"] = a.Data
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the envelope into type, data and extras.
func (a *AddonData) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("addon envelope: %w", err)
	}
	*a = AddonData{}
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &a.Type); err != nil {
			return fmt.Errorf("addon type: %w", err)
		}
		delete(fields, "type")
	}
	if raw, ok := fields["data"]; ok {
		if err := json.Unmarshal(raw, &a.Data); err != nil {
			return fmt.Errorf("addon %s data: %w", a.Type, err)
		}
		delete(fields, "data")
	}
	if len(fields) > 0 {
		a.Extra = fields
	}
	return nil
}

// Decode unmarshals one extra key, e.g. "instances", into v.
func (a AddonData) Decode(key string, v any) (bool, error) {
	raw, ok := a.Extra[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("addon %s %s: %w", a.Type, key, err)
	}
	return true, nil
}
