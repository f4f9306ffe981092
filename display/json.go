package display

import (
	"encoding/json"
)

// MarshalJSON marshals compact JSON for machine callers and indented JSON
// for people.
func MarshalJSON(v interface{}) ([]byte, error) {
	if IsMachineCaller() {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
