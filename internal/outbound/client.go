package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/integlog"
	"github.com/ariefcatur/go-shipment-booking/internal/retry"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

const maxBody = 4 << 20

// Client is a JSON/HTTP client for one external service. Every attempt gets its
// own timeout and its own integration log entry; retries follow retry.Policy.
type Client struct {
	Service string
	BaseURL string
	HTTP    *http.Client
	Timeout time.Duration
	Retry   retry.Policy
	Log     *integlog.Logger
}

type Request struct {
	Method string
	Path   string
	Header http.Header
	JSON   any        // di-encode sebagai body JSON
	Form   url.Values // atau body form-encoded
	Raw    []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func New(service, baseURL string, timeout time.Duration, policy retry.Policy, log *integlog.Logger) *Client {
	return &Client{
		Service: service,
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
		Timeout: timeout,
		Retry:   policy,
		Log:     log,
	}
}

// Do sends req and decodes a 2xx JSON body into out (when out != nil).
func (c *Client) Do(ctx context.Context, req Request, out any) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, shipments.Invalid("request", err.Error())
	}
	op := req.Method + " " + req.Path

	var resp *Response
	err = c.Retry.Do(ctx, c.Service, func(ctx context.Context, attempt int) error {
		r, err := c.attempt(ctx, req, body, contentType, op, attempt)
		if r != nil {
			resp = r
		}
		return err
	})
	if err != nil {
		return resp, err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("%s: decode %s: %w", c.Service, op, err)
		}
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req Request, body []byte, contentType, op string, attempt int) (*Response, error) {
	actx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	hreq, err := http.NewRequestWithContext(actx, req.Method, c.BaseURL+req.Path, bytes.NewReader(body))
	if err != nil {
		return nil, shipments.Invalid("request", err.Error())
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	hreq.Header.Set("Accept", "application/json")

	entry := integlog.Entry{
		Service:        c.Service,
		Operation:      op,
		Attempt:        attempt,
		RequestPayload: string(body),
	}
	start := time.Now()
	hresp, err := c.HTTP.Do(hreq)
	entry.Duration = time.Since(start)
	if err != nil {
		entry.Error = err.Error()
		c.Log.Record(ctx, entry)
		// timeout / connection reset masuk bucket transient
		return nil, &shipments.TransientProviderError{Service: c.Service, Err: err}
	}
	defer hresp.Body.Close()

	rb, rerr := io.ReadAll(io.LimitReader(hresp.Body, maxBody))
	entry.Duration = time.Since(start)
	entry.StatusCode = hresp.StatusCode
	entry.ResponsePayload = string(rb)
	if rerr != nil {
		entry.Error = rerr.Error()
		c.Log.Record(ctx, entry)
		return nil, &shipments.TransientProviderError{Service: c.Service, StatusCode: hresp.StatusCode, Err: rerr}
	}

	resp := &Response{StatusCode: hresp.StatusCode, Header: hresp.Header, Body: rb}
	switch {
	case hresp.StatusCode >= 500 || hresp.StatusCode == http.StatusTooManyRequests:
		entry.Error = http.StatusText(hresp.StatusCode)
		c.Log.Record(ctx, entry)
		return nil, &shipments.TransientProviderError{Service: c.Service, StatusCode: hresp.StatusCode}
	case hresp.StatusCode >= 400:
		entry.Error = http.StatusText(hresp.StatusCode)
		c.Log.Record(ctx, entry)
		return resp, &shipments.ProviderError{
			Service:    c.Service,
			StatusCode: hresp.StatusCode,
			Code:       "provider_rejected",
			Message:    http.StatusText(hresp.StatusCode),
		}
	}
	entry.Success = true
	c.Log.Record(ctx, entry)
	return resp, nil
}

func encodeBody(req Request) ([]byte, string, error) {
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		return b, "application/json", err
	case req.Form != nil:
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	case req.Raw != nil:
		return req.Raw, "", nil
	}
	return nil, "", nil
}
