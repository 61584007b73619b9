package router

import "errors"

// Reasons a message is dropped without a response. The MQTT client logs
// them when HandleMessage returns.
var (
	// ErrMalformedPayload is returned for payloads that are not a JSON object.
	ErrMalformedPayload = errors.New("router: malformed payload")

	// ErrMissingFields is returned for readings without uid or device_id,
	// and for sync requests without device_id.
	ErrMissingFields = errors.New("router: missing required fields")

	// ErrUnknownCommand is returned for a command the router does not serve.
	ErrUnknownCommand = errors.New("router: unknown command")

	// ErrResponseTopic is returned for messages on a reply topic.
	ErrResponseTopic = errors.New("router: message on response topic")
)
