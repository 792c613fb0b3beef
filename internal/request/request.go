// Package request builds the request descriptors handed to the child frame.
package request

import "fmt"

const (
	DefaultMethod      = "get"
	DefaultContentType = "application/json"

	fieldMethod  = "method"
	fieldHeaders = "headers"
)

// Descriptor is a request as the child frame understands it: method, headers
// and whatever else the caller supplies (url, body, ...).
type Descriptor map[string]any

// Method returns the descriptor's method, or "" when unset.
func (d Descriptor) Method() string {
	m, _ := d[fieldMethod].(string)
	return m
}

// Headers returns the descriptor's headers as a string map. Values that are
// not strings are rendered with fmt.Sprint.
func (d Descriptor) Headers() map[string]string {
	switch h := d[fieldHeaders].(type) {
	case map[string]string:
		return h
	case map[string]any:
		out := make(map[string]string, len(h))
		for k, v := range h {
			if s, ok := v.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprint(v)
			}
		}
		return out
	default:
		return nil
	}
}

func defaultHeaders() map[string]string {
	return map[string]string{"Content-Type": DefaultContentType}
}

// Normalize returns a new descriptor with the default method and headers
// applied. A caller's method replaces the default; caller headers override
// defaults key by key. All other fields are copied as is. d is not modified.
func Normalize(d Descriptor) Descriptor {
	out := make(Descriptor, len(d)+2)
	for k, v := range d {
		out[k] = v
	}

	if d.Method() == "" {
		out[fieldMethod] = DefaultMethod
	}

	headers := defaultHeaders()
	for k, v := range d.Headers() {
		headers[k] = v
	}
	out[fieldHeaders] = headers

	return out
}
