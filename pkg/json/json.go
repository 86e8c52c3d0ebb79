// Package json provides JSON serialization helpers for eventrelay built on
// goccy/go-json. Besides Marshal/Unmarshal it exposes SerializedSize, which
// the transformer and the chunker use for all payload-size accounting so
// every component measures bytes the same way they will go on the wire.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// SerializedSize returns the number of bytes v occupies once serialized.
// Returns 0 when v cannot be serialized; callers treat such values as
// skippable rather than fatal.
func SerializedSize(v interface{}) int {
	data, err := gojson.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
