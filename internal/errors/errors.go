package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so a Wrap-ed copy of a sentinel still compares equal
// to the sentinel through errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrDuplicateName = &AppError{Code: "PROFILE_001", Message: "name already in use"}
	ErrNotFound      = &AppError{Code: "PROFILE_002", Message: "record not found"}
	// Same message as ErrNotFound on purpose: a caller probing another
	// user's data must not be able to tell the two apart.
	ErrPermissionDenied = &AppError{Code: "PROFILE_003", Message: "record not found"}
	ErrSelfMember       = &AppError{Code: "PROFILE_004", Message: "the self profile cannot be removed"}

	ErrAlreadyBound = &AppError{Code: "BIND_001", Message: "binding already exists"}

	ErrRecognitionFailed = &AppError{Code: "RECOG_001", Message: "recognition failed"}

	ErrNoVitals = &AppError{Code: "HEALTH_001", Message: "no vitals in log entry"}

	ErrDeliveryFailed   = &AppError{Code: "PUSH_001", Message: "message delivery failed"}
	ErrStoreUnavailable = &AppError{Code: "STORE_001", Message: "storage unavailable"}

	ErrFormTokenInvalid = &AppError{Code: "FORM_001", Message: "invalid or expired form token"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
