package stage

import (
	"encoding/json"
	"fmt"

	"reelsight/internal/services"
)

// As asserts the stage input to T. A mismatch is a wiring error and is
// reported as services.ErrValidation so the job fails with a clear message.
func As[T any](stageName string, input any) (T, error) {
	value, ok := input.(T)
	if ok {
		return value, nil
	}
	if ptr, ok := input.(*T); ok && ptr != nil {
		return *ptr, nil
	}
	var zero T
	return zero, services.Wrap(
		services.ErrValidation, stageName, "decode input",
		fmt.Sprintf("Unexpected stage input %T", input), nil)
}

// DecodeJSON parses a stored stage artifact into T.
func DecodeJSON[T any](stageName string, raw []byte) (T, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, services.Wrap(
			services.ErrValidation, stageName, "decode artifact",
			"Stored stage artifact is missing or invalid; rerun from an earlier stage", err)
	}
	return value, nil
}
