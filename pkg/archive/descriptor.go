package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// Descriptor kinds.
const (
	KindHTTP    = "http"
	KindCommand = "command"
)

// SensitiveHeaders are dropped from HTTP descriptors during sanitization.
var SensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"X-Api-Key",
}

// userSegment matches the "user@" part of an ssh target.
var userSegment = regexp.MustCompile(` \S*@`)

// Descriptor is the fully assembled request for one page. Construct it with
// HTTPDescriptor or CommandDescriptor; the zero value describes nothing.
type Descriptor struct {
	Kind    string      `json:"kind"`
	Method  string      `json:"method,omitempty"`
	URL     string      `json:"url,omitempty"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
	Command string      `json:"command,omitempty"`
}

// HTTPDescriptor describes an HTTP request. Headers are copied.
func HTTPDescriptor(method, url string, headers http.Header, body []byte) Descriptor {
	var b []byte
	if len(body) > 0 {
		b = append([]byte(nil), body...)
	}
	return Descriptor{
		Kind:    KindHTTP,
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers.Clone(),
		Body:    b,
	}
}

// CommandDescriptor describes an out-of-process command line.
func CommandDescriptor(cmd string) Descriptor {
	return Descriptor{
		Kind:    KindCommand,
		Command: cmd,
	}
}

// Sanitized returns a copy without credential-bearing parts.
func (d Descriptor) Sanitized() Descriptor {
	out := d
	out.Headers = d.Headers.Clone()
	for _, h := range SensitiveHeaders {
		out.Headers.Del(h)
	}
	if len(out.Headers) == 0 {
		out.Headers = nil
	}
	if d.Command != "" {
		out.Command = SanitizeCommand(d.Command)
	}
	return out
}

// SanitizeCommand masks the user segment of an ssh target.
//
// Example:
//
//	ssh -p 29418 alice@host gerrit version -> ssh -p 29418 xxxxx@host gerrit version
func SanitizeCommand(cmd string) string {
	return userSegment.ReplaceAllString(cmd, " xxxxx@")
}

// String generates a deterministic, readable form of the sanitized descriptor.
// Format: kind:method:url:header1=v1:header2=v2:body=<sha256> or kind:command
func (d Descriptor) String() string {
	s := d.Sanitized()
	parts := []string{s.Kind}

	if s.Kind == KindCommand {
		parts = append(parts, s.Command)
		return strings.Join(parts, ":")
	}

	parts = append(parts, s.Method, s.URL)

	// Headers sorted for determinism
	if len(s.Headers) > 0 {
		names := make([]string, 0, len(s.Headers))
		for name := range s.Headers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(s.Headers.Values(name), ",")))
		}
	}

	if len(s.Body) > 0 {
		sum := sha256.Sum256(s.Body)
		parts = append(parts, "body="+hex.EncodeToString(sum[:]))
	}

	return strings.Join(parts, ":")
}

// Key returns the store key of the sanitized descriptor.
func (d Descriptor) Key() string {
	sum := sha256.Sum256([]byte(d.String()))
	return "harvest:archive:" + hex.EncodeToString(sum[:])
}
