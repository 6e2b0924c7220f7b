// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"errors"

	"github.com/samber/oops"
)

// Publish failures.
var (
	ErrTopicNotFound = errors.New("topic not found")
	ErrNoSubscribers = errors.New("topic has no live subscribers")
)

// Error codes.
const (
	CodeTopicNotFound = "TOPIC_NOT_FOUND"
	CodeNoSubscribers = "NO_SUBSCRIBERS"
)

func topicNotFound(topic string) error {
	return oops.Code(CodeTopicNotFound).With("topic", topic).Wrap(ErrTopicNotFound)
}

func noSubscribers(topic string) error {
	return oops.Code(CodeNoSubscribers).With("topic", topic).Wrap(ErrNoSubscribers)
}
