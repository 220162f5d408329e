package ws

import (
	"fmt"
	"strings"
)

// chunkBuffer reassembles a multi-part base64 transfer for one task. It is
// owned by a single connection's read loop, so no locking is needed; a worker
// sends chunks for at most one task at a time, but the buffer keys by task id
// anyway so an interleaved retransmit cannot corrupt another transfer.
type chunkBuffer struct {
	parts map[string]map[int]string
}

func newChunkBuffer() *chunkBuffer {
	return &chunkBuffer{parts: make(map[string]map[int]string)}
}

// add stores one fragment. When all declared fragments are present it returns
// the payload concatenated in index order and clears the task's buffer.
func (b *chunkBuffer) add(taskID string, index, total int, data string) (string, bool, error) {
	if total <= 0 || index < 0 || index >= total {
		return "", false, fmt.Errorf("chunk %d of %d out of range", index, total)
	}

	m, ok := b.parts[taskID]
	if !ok {
		m = make(map[int]string, total)
		b.parts[taskID] = m
	}
	m[index] = data
	if len(m) < total {
		return "", false, nil
	}

	var sb strings.Builder
	for i := 0; i < total; i++ {
		part, ok := m[i]
		if !ok {
			return "", false, fmt.Errorf("chunk %d missing at reassembly of %s", i, taskID)
		}
		sb.WriteString(part)
	}
	delete(b.parts, taskID)
	return sb.String(), true, nil
}

// drop abandons any in-flight transfer for the task.
func (b *chunkBuffer) drop(taskID string) {
	delete(b.parts, taskID)
}
