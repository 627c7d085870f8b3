package semtable

import (
	"fmt"
	"net/http"
)

// The maximum number of response body bytes preserved in a ResponseError.
var MaxErrorBodyLength = 512

// ResponseError represents a non-2xx response from the backend, preserving
// the status code and a bounded portion of the response body.
type ResponseError struct {
	StatusCode int
	Verb       string
	URL        string
	Body       string
}

func (self *ResponseError) Error() string {
	var msg = fmt.Sprintf("%s %s: HTTP %d", self.Verb, self.URL, self.StatusCode)

	if self.Body != `` {
		msg += `: ` + self.Body
	}

	return msg
}

func errorFromResponse(verb string, url string, code int, body []byte) error {
	if len(body) > MaxErrorBodyLength {
		body = body[:MaxErrorBodyLength]
	}

	return &ResponseError{
		StatusCode: code,
		Verb:       verb,
		URL:        url,
		Body:       string(body),
	}
}

// IsNotFound reports whether the given error is a ResponseError with a 404 status.
func IsNotFound(err error) bool {
	if rerr, ok := err.(*ResponseError); ok {
		return rerr.StatusCode == http.StatusNotFound
	}

	return false
}
