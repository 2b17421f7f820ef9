package bench

import (
	"fmt"

	"github.com/opendata-oss/opendata-go/pkg/id"
)

// Message framing: every published value starts with the producer-assigned
// 16-byte sortable message ID, followed by the payload. One producer's IDs
// are strictly increasing in send order, so within a partition they double
// as a per-producer delivery check.
const messageIDSize = 16

// frameMessage prepends the message ID to the payload.
func frameMessage(msgID id.ID, payload []byte) []byte {
	out := make([]byte, 0, messageIDSize+len(payload))
	out = append(out, msgID[:]...)
	return append(out, payload...)
}

// unframeMessage splits a stored value into its message ID and payload. A
// value shorter than the ID is malformed.
func unframeMessage(v []byte) (id.ID, []byte, error) {
	var msgID id.ID
	if len(v) < messageIDSize {
		return msgID, nil, fmt.Errorf("bench: message is %d bytes, shorter than its %d-byte id", len(v), messageIDSize)
	}
	copy(msgID[:], v[:messageIDSize])
	return msgID, v[messageIDSize:], nil
}
