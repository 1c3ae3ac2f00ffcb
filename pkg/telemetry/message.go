// SPDX-License-Identifier: Apache-2.0

package telemetry

import "time"

// Message is a single inbound telemetry message as delivered by the
// transport. The payload is the raw byte sequence published on the topic.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}
