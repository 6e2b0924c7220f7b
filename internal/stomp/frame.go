// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package stomp implements the line-oriented frame format spoken between
// clients and the broker.
//
// A frame is a command line, zero or more "key:value" header lines, a blank
// line, an optional body and a terminating NUL byte:
//
//	SEND
//	topic:stocks
//
//	price: 1
//	^@
package stomp

// Terminator ends every frame on the wire.
const Terminator byte = 0

// Command names a frame type.
type Command string

// Commands understood by the broker and its clients.
const (
	CommandConnect    Command = "CONNECT"
	CommandConnected  Command = "CONNECTED"
	CommandSubscribe  Command = "SUBSCRIBE"
	CommandSend       Command = "SEND"
	CommandMessage    Command = "MESSAGE"
	CommandDisconnect Command = "DISCONNECT"
	CommandReceipt    Command = "RECEIPT"
	CommandError      Command = "ERROR"
)

// Header keys.
const (
	HeaderLogin       = "login"
	HeaderDestination = "destination"
	HeaderTopic       = "topic"
	HeaderMessage     = "message"
)

// Header is a single key/value pair. Order is significant.
type Header struct {
	Key   string
	Value string
}

// Frame is one protocol message.
type Frame struct {
	Command Command
	Headers []Header
	Body    string
}

// Header returns the value of the first header named key, or "" if absent.
func (f Frame) Header(key string) string {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

type bodyRule uint8

const (
	bodyForbidden bodyRule = iota
	bodyRequired
)

// layout is the exact shape a command must have.
type layout struct {
	headers []string
	body    bodyRule
}

var layouts = map[Command]layout{
	CommandConnect:    {headers: []string{HeaderLogin}, body: bodyForbidden},
	CommandConnected:  {body: bodyForbidden},
	CommandSubscribe:  {headers: []string{HeaderDestination}, body: bodyForbidden},
	CommandSend:       {headers: []string{HeaderTopic}, body: bodyRequired},
	CommandMessage:    {headers: []string{HeaderDestination}, body: bodyRequired},
	CommandDisconnect: {body: bodyForbidden},
	CommandReceipt:    {body: bodyForbidden},
	CommandError:      {headers: []string{HeaderMessage}, body: bodyForbidden},
}

// Connect builds a CONNECT frame.
func Connect(login string) Frame {
	return Frame{Command: CommandConnect, Headers: []Header{{Key: HeaderLogin, Value: login}}}
}

// Connected builds a CONNECTED frame.
func Connected() Frame {
	return Frame{Command: CommandConnected}
}

// Subscribe builds a SUBSCRIBE frame.
func Subscribe(destination string) Frame {
	return Frame{Command: CommandSubscribe, Headers: []Header{{Key: HeaderDestination, Value: destination}}}
}

// Send builds a SEND frame.
func Send(topic, body string) Frame {
	return Frame{Command: CommandSend, Headers: []Header{{Key: HeaderTopic, Value: topic}}, Body: body}
}

// Message builds a MESSAGE frame.
func Message(destination, body string) Frame {
	return Frame{Command: CommandMessage, Headers: []Header{{Key: HeaderDestination, Value: destination}}, Body: body}
}

// Disconnect builds a DISCONNECT frame.
func Disconnect() Frame {
	return Frame{Command: CommandDisconnect}
}

// Receipt builds a RECEIPT frame.
func Receipt() Frame {
	return Frame{Command: CommandReceipt}
}

// Error builds an ERROR frame carrying reason in its message header.
func Error(reason string) Frame {
	return Frame{Command: CommandError, Headers: []Header{{Key: HeaderMessage, Value: reason}}}
}
