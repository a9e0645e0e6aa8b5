package minio

import "fmt"

// Error codes reported in load envelopes.
const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodeObjectNotFound      = "E_OBJECT_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeThrottled           = "E_THROTTLED"
	CodeEncodeFailed        = "E_ENCODE_FAILED"
	CodeUploadFailed        = "E_UPLOAD_FAILED"
)

// Error is an object storage failure. Retryable marks transient failures the
// sink may resend.
type Error struct {
	Code      string
	Retryable bool
	// Object is bucket/key when the failure concerns one object.
	Object string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Object != "" {
		msg += " " + e.Object
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func wrapError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// about attaches the object an error concerns.
func (e *Error) about(bucket, key string) *Error {
	e.Object = bucket + "/" + key
	return e
}
