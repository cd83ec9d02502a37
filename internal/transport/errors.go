package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusFailed is the status marker carried by every Failure.
const StatusFailed = "failed"

// Failure is the single error shape returned for requests that did not
// produce a usable response once the retry budget was spent. It marshals to
// {"error": "...", "status": "failed"}.
type Failure struct {
	Message    string `json:"error"`
	Status     string `json:"status"`
	StatusCode int    `json:"-"`
	Method     string `json:"-"`
	URL        string `json:"-"`
	Err        error  `json:"-"`
}

func (f *Failure) Error() string {
	if f == nil {
		return "request failed"
	}
	if f.Method != "" && f.URL != "" {
		return fmt.Sprintf("%s %s: %s", f.Method, f.URL, f.Message)
	}
	if f.Message != "" {
		return f.Message
	}
	return "request failed"
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

func newFailure(method, rawURL string, err error) *Failure {
	return &Failure{
		Message: err.Error(),
		Status:  StatusFailed,
		Method:  method,
		URL:     rawURL,
		Err:     err,
	}
}

func statusFailure(method, rawURL string, resp *http.Response) *Failure {
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &Failure{
		Message:    status,
		Status:     StatusFailed,
		StatusCode: resp.StatusCode,
		Method:     method,
		URL:        rawURL,
	}
}

func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if !errors.As(err, &failure) {
		return nil, false
	}
	return failure, true
}

func IsUnauthorized(err error) bool {
	failure, ok := AsFailure(err)
	if !ok {
		return false
	}
	return failure.StatusCode == http.StatusUnauthorized || failure.StatusCode == http.StatusForbidden
}

func IsNotFound(err error) bool {
	failure, ok := AsFailure(err)
	return ok && failure.StatusCode == http.StatusNotFound
}
