package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/antonymartiz/PrivateVoting/log"
)

// Error is used by handler functions to wrap errors, assigning a unique error
// code, a machine readable kind and the HTTP Status that should be used.
type Error struct {
	Err        error
	Kind       string
	Code       int
	HTTPstatus int
}

// MarshalJSON returns a JSON containing Kind, Err.Error() and Code. Field
// HTTPstatus is ignored. Clients branch on "error" and show "details".
//
// Example output: {"error":"ContractNotFound","details":"no contract at address: ...","code":40011}
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(
		struct {
			Kind    string `json:"error"`
			Details string `json:"details"`
			Code    int    `json:"code"`
		}{
			Kind:    e.Kind,
			Details: e.Err.Error(),
			Code:    e.Code,
		})
}

// Error returns the Message contained inside the APIerror
func (e Error) Error() string {
	return e.Err.Error()
}

// Write serializes a JSON msg using APIerror.Message and APIerror.Code
// and passes that to ctx.Send()
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "kind", e.Kind, "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	// http.Error would reset the content type to text/plain
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(append(msg, '\n')); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// Withf returns a copy of APIerror with the Sprintf formatted string appended at the end of e.Err
func (e Error) Withf(format string, args ...any) Error {
	return e.With(fmt.Sprintf(format, args...))
}

// With returns a copy of APIerror with the string appended at the end of e.Err
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Kind:       e.Kind,
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of APIerror with err.Error() appended at the end of e.Err
func (e Error) WithErr(err error) Error {
	return e.With(err.Error())
}
