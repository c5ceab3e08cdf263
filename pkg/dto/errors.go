package dto

// Machine-readable error codes returned alongside ok=false.
const (
	ErrMissingImage         = "missing_image"
	ErrMissingFields        = "missing_fields"
	ErrBadImage             = "bad_image"
	ErrNoFace               = "no_face"
	ErrNoMatch              = "no_match"
	ErrDB                   = "db_error"
	ErrStorageNotConfigured = "storage_not_configured"
	ErrUnsupportedOperation = "unsupported_operation"
	ErrForbidden            = "forbidden"
	ErrUserMissing          = "user_missing"
	ErrImageMissing         = "image_missing"
)

// Error is the uniform failure envelope.
type Error struct {
	OK     bool   `json:"ok"`
	Code   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func NewError(code string) Error {
	return Error{Code: code}
}

func NewErrorDetail(code, detail string) Error {
	return Error{Code: code, Detail: detail}
}
