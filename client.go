package semtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/oliveagle/jsonpath"
)

var DefaultRequestTimeout = 30 * time.Second

// Client talks to a semantic table enrichment backend rooted at a base URL.
// All API endpoints live under <base>/api/.
type Client struct {
	// The root URL of the backend (scheme and host, optionally a path prefix).
	BaseURL string

	// Supplies bearer tokens for each request.
	Tokens TokenSource

	// The default timeout applied to requests that do not carry their own deadline.
	Timeout time.Duration

	// Whether to send a randomized User-Agent header with each request.
	RandomizeUserAgent bool

	// The underlying HTTP client.  A zero-value client with no timeout is
	// used by default; timeouts are enforced per-request.
	HTTPClient *http.Client
}

func NewClient(baseURL string, tokens TokenSource) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, `/`)

	if u, err := url.Parse(baseURL); err == nil {
		if u.Scheme == `` || u.Host == `` {
			return nil, fmt.Errorf("base url %q must include a scheme and host", baseURL)
		}
	} else {
		return nil, fmt.Errorf("base url: %v", err)
	}

	if tokens == nil {
		return nil, fmt.Errorf("a token source is required")
	}

	return &Client{
		BaseURL:    baseURL,
		Tokens:     tokens,
		Timeout:    DefaultRequestTimeout,
		HTTPClient: new(http.Client),
	}, nil
}

// Returns the absolute URL of the given endpoint path under the API root.
func (self *Client) apiURL(endpoint string) string {
	return self.BaseURL + `/api/` + strings.TrimPrefix(endpoint, `/`)
}

func (self *Client) userAgent() string {
	if self.RandomizeUserAgent {
		return uarand.GetRandom()
	} else {
		return ApplicationName + `/` + ApplicationVersion
	}
}

func (self *Client) newRequest(ctx context.Context, verb string, endpoint string, qs url.Values, body io.Reader) (*http.Request, error) {
	var uri = self.apiURL(endpoint)

	if len(qs) > 0 {
		uri += `?` + qs.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, verb, uri, body)

	if err != nil {
		return nil, err
	}

	token, err := self.Tokens.Token()

	if err != nil {
		return nil, fmt.Errorf("token: %v", err)
	}

	request.Header.Set(`Accept`, `application/json, text/plain, */*`)
	request.Header.Set(`Authorization`, `Bearer `+token)
	request.Header.Set(`User-Agent`, self.userAgent())
	request.Header.Set(`Origin`, self.BaseURL)
	request.Header.Set(`Referer`, self.BaseURL+`/`)

	return request, nil
}

// Releases the request's timeout context once the response body is closed.
type timedBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (self *timedBody) Close() error {
	defer self.cancel()
	return self.ReadCloser.Close()
}

// Performs the request, enforcing the client timeout unless the context
// already carries a deadline.  The deadline covers reading the response
// body; it is released when the body is closed.  Responses with non-2xx
// statuses are consumed and returned as *ResponseError.
func (self *Client) do(request *http.Request) (*http.Response, error) {
	var cancel context.CancelFunc = func() {}

	if _, ok := request.Context().Deadline(); !ok && self.Timeout > 0 {
		var ctx context.Context

		ctx, cancel = context.WithTimeout(request.Context(), self.Timeout)
		request = request.WithContext(ctx)
	}

	log.Debugf("api: > %s %s", request.Method, request.URL)

	if response, err := self.HTTPClient.Do(request); err == nil {
		log.Debugf("api: < HTTP %d (%d bytes)", response.StatusCode, response.ContentLength)

		response.Body = &timedBody{
			ReadCloser: response.Body,
			cancel:     cancel,
		}

		if response.StatusCode >= 400 {
			defer response.Body.Close()
			var body, _ = ioutil.ReadAll(response.Body)

			return nil, errorFromResponse(request.Method, request.URL.String(), response.StatusCode, body)
		}

		return response, nil
	} else {
		cancel()
		return nil, err
	}
}

func (self *Client) getJSON(ctx context.Context, endpoint string, qs url.Values, out interface{}) error {
	request, err := self.newRequest(ctx, http.MethodGet, endpoint, qs, nil)

	if err != nil {
		return err
	}

	return self.decodeInto(request, out)
}

func (self *Client) postJSON(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	var body = bytes.NewBuffer(nil)

	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return err
	}

	request, err := self.newRequest(ctx, http.MethodPost, endpoint, nil, body)

	if err != nil {
		return err
	}

	request.Header.Set(`Content-Type`, `application/json;charset=UTF-8`)

	return self.decodeInto(request, out)
}

func (self *Client) deleteRequest(ctx context.Context, endpoint string) error {
	request, err := self.newRequest(ctx, http.MethodDelete, endpoint, nil, nil)

	if err != nil {
		return err
	}

	if response, err := self.do(request); err == nil {
		response.Body.Close()
		return nil
	} else {
		return err
	}
}

func (self *Client) decodeInto(request *http.Request, out interface{}) error {
	if response, err := self.do(request); err == nil {
		defer response.Body.Close()

		if out == nil {
			return nil
		}

		var data, err = ioutil.ReadAll(response.Body)

		if err != nil {
			return err
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: response: %v", request.Method, request.URL, err)
		}

		return nil
	} else {
		return err
	}
}

// Get retrieves an endpoint and returns the decoded JSON response, optionally
// transformed by one or more newline-separated JSONPath expressions.
func (self *Client) Get(ctx context.Context, endpoint string, transform string) (interface{}, error) {
	var rv interface{}

	if err := self.getJSON(ctx, endpoint, nil, &rv); err != nil {
		return nil, err
	}

	return ApplyJPath(rv, transform)
}

// ApplyJPath applies each non-empty line of jpath to data as a JSONPath
// expression, feeding the result of one line into the next.
func ApplyJPath(data interface{}, jpath string) (interface{}, error) {
	if jpath != `` {
		var err error

		for i, line := range strings.Split(jpath, "\n") {
			line = strings.TrimSpace(line)

			if line == `` {
				continue
			}

			data, err = jsonpath.JsonPathLookup(data, line)

			if err != nil {
				return data, fmt.Errorf("jpath line %d: %v", i+1, err)
			}
		}
	}

	return data, nil
}
