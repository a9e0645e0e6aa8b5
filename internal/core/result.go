package core

import "net/http"

// Meta is the status block every stage reports. StatusCode follows the
// 200/500 convention and is informational only.
type Meta struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	JobTitle   string `json:"job_title"`
}

// Result is the envelope returned by every extract, transform and load step:
// either data plus a success meta, or a failure meta alone.
type Result[T any] struct {
	Data T
	Meta Meta
	ok   bool
}

// Success wraps data in a 200 envelope.
func Success[T any](data T, jobTitle, message string) Result[T] {
	return Result[T]{
		Data: data,
		Meta: Meta{StatusCode: http.StatusOK, Message: message, JobTitle: jobTitle},
		ok:   true,
	}
}

// Failure builds a 500 envelope carrying the error text.
func Failure[T any](jobTitle string, err error) Result[T] {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result[T]{
		Meta: Meta{StatusCode: http.StatusInternalServerError, Message: msg, JobTitle: jobTitle},
	}
}

// OK reports whether the envelope carries data.
func (r Result[T]) OK() bool {
	return r.ok
}
