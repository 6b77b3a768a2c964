package performance

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Response is the outcome of one request made by a VU.
type Response struct {
	Method   string
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
	Error    error
}

// Failed reports whether the request counts toward http_req_failed:
// a transport error or a status outside 200-399.
func (r *Response) Failed() bool {
	if r == nil || r.Error != nil {
		return true
	}
	return r.Status < 200 || r.Status > 399
}

// BodyString returns the response body as a string.
func (r *Response) BodyString() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Check is a named assertion over a response.
type Check struct {
	Name string
	Fn   func(*Response) bool
}

// evaluate runs the check; a nil response or a panicking check fails.
func (c Check) evaluate(res *Response) (ok bool) {
	if res == nil || c.Fn == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return c.Fn(res)
}

// StatusIs passes when the response status equals code.
func StatusIs(code int) Check {
	return Check{
		Name: fmt.Sprintf("status is %d", code),
		Fn:   func(r *Response) bool { return r.Status == code },
	}
}

// BodyContains passes when the response body contains substr.
func BodyContains(name, substr string) Check {
	return Check{
		Name: name,
		Fn:   func(r *Response) bool { return strings.Contains(r.BodyString(), substr) },
	}
}
