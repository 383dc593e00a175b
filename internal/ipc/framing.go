// Framing: each message is a 4-byte big-endian length prefix followed by
// the encoded payload. The original (original_source/src/ipc/server.rs:51)
// uses a NUL-terminated frame instead, which works there because its wire
// types are a mostly-string enum; this module's wire types are far more
// numeric (PID, Retry, Port, ...), and msgpack happily emits a bare 0x00
// byte for any zero-valued int field, which a NUL scan would mistake for
// the frame terminator and truncate a perfectly valid response. A
// length prefix sidesteps the question of what bytes a payload may contain
// entirely, for both the msgpack and JSON codecs.
package ipc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxFrameSize bounds a single frame so a corrupt or hostile length prefix
// can't make ReadFrame allocate an unbounded buffer.
const maxFrameSize = 64 << 20

// Codec selects MessagePack (default) or JSON payload encoding.
type Codec struct {
	JSON bool
}

func (c Codec) Encode(v interface{}) ([]byte, error) {
	if c.JSON {
		return json.Marshal(v)
	}
	return msgpack.Marshal(v)
}

func (c Codec) Decode(data []byte, v interface{}) error {
	if c.JSON {
		return json.Unmarshal(data, v)
	}
	return msgpack.Unmarshal(data, v)
}

// WriteFrame encodes v and writes it as a length-prefixed frame.
func (c Codec) WriteFrame(w io.Writer, v interface{}) error {
	payload, err := c.Encode(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame and decodes it into v.
func (c Codec) ReadFrame(r *bufio.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds maximum of %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return c.Decode(payload, v)
}
