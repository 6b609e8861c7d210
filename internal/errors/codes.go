package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Mandate errors
	CodeValidation Code = "VALIDATION"

	// Envelope errors
	CodeMissingField    Code = "MISSING_FIELD"
	CodeAmbiguousResult Code = "AMBIGUOUS_RESULT"

	// Reference errors
	CodeNotFound Code = "NOT_FOUND"

	// Credential token errors
	CodeInvalidToken Code = "INVALID_TOKEN"

	// Remote invocation errors
	CodeUnsupportedExtension Code = "UNSUPPORTED_EXTENSION"
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"
	CodeTimeout              Code = "TIMEOUT"
)
