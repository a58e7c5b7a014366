package core

import (
	"encoding/json"

	"assetcore/pkg/domain"
)

// decodeChangePayload decodes a change payload into T. It reports false when
// the payload is undefined, empty, or fails to unmarshal, letting rule code
// skip changes it cannot interpret instead of erroring.
func decodeChangePayload[T any](payload domain.ChangePayload) (T, bool) {
	var zero T
	if !payload.Defined() || payload.IsEmpty() {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(payload.Raw(), &value); err != nil {
		return zero, false
	}
	return value, true
}
