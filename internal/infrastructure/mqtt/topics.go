package mqtt

import "strings"

// Topic suffixes appended to the configured readings topic.
const (
	// SuffixControl carries admin commands (add_card, remove_card, sync).
	SuffixControl = "/control"

	// SuffixResponse is appended to the inbound topic for every reply.
	SuffixResponse = "/response"

	// SuffixStatus carries the retained online/offline status of the service.
	SuffixStatus = "/status"
)

// Topics builds the topic names derived from one readings topic.
//
//	topics := mqtt.Topics{Base: "rfid/readings"}
//	topics.Control()                    // "rfid/readings/control"
//	topics.Response("rfid/readings")    // "rfid/readings/response"
type Topics struct {
	Base string
}

// Readings returns the topic devices publish card readings to.
func (t Topics) Readings() string {
	return t.Base
}

// Control returns the topic admin commands arrive on.
func (t Topics) Control() string {
	return t.Base + SuffixControl
}

// Status returns the retained service status topic (also the LWT topic).
func (t Topics) Status() string {
	return t.Base + SuffixStatus
}

// Response returns the reply topic for a message received on inbound.
func (Topics) Response(inbound string) string {
	return inbound + SuffixResponse
}

// IsResponse reports whether topic is a reply topic. The service subscribes
// to exact topics, but a broker bridge or misconfigured ACL could still loop
// replies back; the router drops them.
func IsResponse(topic string) bool {
	return strings.HasSuffix(topic, SuffixResponse)
}
