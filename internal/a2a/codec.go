package a2a

import (
	"encoding/json"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
)

// validator is implemented by decoded objects that self-check.
type validator interface {
	Validate() error
}

// FindDataPart returns the payload of the first data part tagged with key.
// Absence is not an error; callers decide whether a missing part matters.
func FindDataPart(key string, parts []Part) (any, bool) {
	for _, part := range parts {
		if part.Kind != PartKindData {
			continue
		}
		if value, ok := part.Data[key]; ok {
			return value, true
		}
	}
	return nil, false
}

// FindTextPart returns the first free text part.
func FindTextPart(parts []Part) (string, bool) {
	for _, part := range parts {
		if part.Kind == PartKindText {
			return part.Text, true
		}
	}
	return "", false
}

// FindStringPart returns the payload of the first data part tagged with
// key when that payload is a plain string.
func FindStringPart(key string, parts []Part) (string, bool) {
	value, ok := FindDataPart(key, parts)
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}

// ParseCanonicalObject locates the data part tagged with key and decodes
// it into T. A missing part is a MISSING_FIELD error; a payload that does
// not decode or validate as T is a VALIDATION error.
func ParseCanonicalObject[T any](key string, parts []Part) (T, error) {
	var out T
	value, ok := FindDataPart(key, parts)
	if !ok {
		return out, apperrors.WithMetadata(apperrors.CodeMissingField, "missing "+key, map[string]string{"key": key})
	}
	if err := decodeAs(value, &out); err != nil {
		return out, err
	}
	return out, nil
}

// FindCanonicalObjects collects every object tagged with key across a
// task's artifacts, decoded and validated as T.
func FindCanonicalObjects[T any](artifacts []Artifact, key string) ([]T, error) {
	var out []T
	for _, artifact := range artifacts {
		for _, part := range artifact.Parts {
			if part.Kind != PartKindData {
				continue
			}
			value, ok := part.Data[key]
			if !ok {
				continue
			}
			var decoded T
			if err := decodeAs(value, &decoded); err != nil {
				return nil, err
			}
			out = append(out, decoded)
		}
	}
	return out, nil
}

// Only returns the single element of list, or an AMBIGUOUS_RESULT error
// when the count is not exactly one.
func Only[T any](list []T) (T, error) {
	var zero T
	if len(list) != 1 {
		return zero, apperrors.New(apperrors.CodeAmbiguousResult, "expected exactly one object")
	}
	return list[0], nil
}

// decodeAs re-marshals a generic JSON value into the typed target and runs
// its validation hook when present.
func decodeAs(value any, target any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "encode data part", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "malformed data part", err)
	}
	if v, ok := target.(validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
