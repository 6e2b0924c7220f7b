// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stomp

import (
	"bytes"
	"strings"
)

// Parse decodes one raw frame. A trailing Terminator is accepted but not
// required. Parse has no state and is safe for concurrent use.
//
// Header keys and values are whitespace-trimmed. Each command must carry
// exactly its declared headers, in order, and a body only if it takes one.
func Parse(raw []byte) (Frame, error) {
	text := string(bytes.TrimSuffix(raw, []byte{Terminator}))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimLeft(text, "\n")

	name, rest, _ := strings.Cut(text, "\n")
	cmd := Command(strings.TrimSpace(name))
	shape, ok := layouts[cmd]
	if !ok {
		return Frame{}, parseError(CodeUnknownCommand, ErrUnknownCommand, cmd, "command %q", name)
	}

	lines := strings.Split(rest, "\n")
	headers := make([]Header, 0, len(shape.headers))
	i := 0
	for ; i < len(lines) && lines[i] != ""; i++ {
		h, ok := parseHeader(lines[i])
		if !ok {
			return Frame{}, parseError(CodeInvalidHeader, ErrInvalidHeader, cmd, "malformed header line %q", lines[i])
		}
		headers = append(headers, h)
	}

	if len(headers) > len(shape.headers) {
		return Frame{}, parseError(CodeInvalidHeader, ErrInvalidHeader, cmd,
			"expected %d headers, got %d", len(shape.headers), len(headers))
	}
	for j, h := range headers {
		if h.Key != shape.headers[j] {
			return Frame{}, parseError(CodeInvalidHeader, ErrInvalidHeader, cmd,
				"expected header %q, got %q", shape.headers[j], h.Key)
		}
	}
	if len(headers) < len(shape.headers) {
		return Frame{}, parseError(CodeMissingHeader, ErrMissingHeader, cmd,
			"missing header %q", shape.headers[len(headers)])
	}

	var body string
	if i < len(lines) {
		body = strings.TrimRight(strings.Join(lines[i+1:], "\n"), "\n")
	}
	switch {
	case shape.body == bodyForbidden && body != "":
		return Frame{}, parseError(CodeUnexpectedContent, ErrUnexpectedContent, cmd, "command takes no body")
	case shape.body == bodyRequired && body == "":
		return Frame{}, parseError(CodeMissingContent, ErrMissingContent, cmd, "command requires a body")
	}

	if len(headers) == 0 {
		headers = nil
	}
	return Frame{Command: cmd, Headers: headers, Body: body}, nil
}

// parseHeader splits "key:value". Exactly one colon is allowed and neither
// side may be blank.
func parseHeader(line string) (Header, bool) {
	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		return Header{}, false
	}
	key := strings.TrimSpace(parts[0])
	val := strings.TrimSpace(parts[1])
	if key == "" || val == "" {
		return Header{}, false
	}
	return Header{Key: key, Value: val}, true
}

// Encode renders f in wire form, Terminator included.
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.Grow(len(f.Command) + len(f.Body) + 32)

	buf.WriteString(string(f.Command))
	buf.WriteByte('\n')
	for _, h := range f.Headers {
		buf.WriteString(h.Key)
		buf.WriteByte(':')
		buf.WriteString(h.Value)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	if f.Body != "" {
		buf.WriteString(f.Body)
		buf.WriteString("\n\n")
	}
	buf.WriteByte(Terminator)
	return buf.Bytes()
}
