package config

import "encoding/json"

// marshalStable relies on encoding/json's guarantee that map keys are
// emitted in sorted order, giving a stable fingerprint for equal configs.
func marshalStable(v any) ([]byte, error) {
	return json.Marshal(v)
}
