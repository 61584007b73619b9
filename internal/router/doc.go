// Package router implements the device protocol spoken over MQTT.
//
// Devices publish to the readings topic (default rfid/readings); admin
// tools publish to its /control sub-topic. Every reply goes to the inbound
// topic plus /response.
//
// Inbound payloads are JSON objects:
//
//	{"uid": "04A1B2C3", "device_id": "door-1", ...}       tag reading
//	{"command": "add_card", "uid": "04A1B2C3"}             add a card
//	{"command": "remove_card", "uid": "04A1B2C3"}          remove a card
//	{"command": "sync_request", "device_id": "door-1"}     list active cards
//
// Replies:
//
//	{"type": "access_response", "status": "success", "authorized": true, "card_id": "04A1B2C3"}
//	{"type": "response", "command": "add_card", "status": "error", "reason": "card already exists", "card_id": "04A1B2C3"}
//	{"type": "response", "command": "sync", "status": "success", "cards": ["04A1B2C3"]}
//
// Payloads that are not JSON objects, readings without uid or device_id,
// and unknown commands are dropped without a reply. A fault while handling
// one message never stops the next from being served.
package router
