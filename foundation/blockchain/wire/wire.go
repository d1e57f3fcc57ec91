// Package wire implements the framing and the closed set of messages of the
// node to node sync protocol. Every frame is laid out as
//
//	[1 byte version][4 byte big endian payload length][2 byte command][payload]
//
// and payload fields are length prefixed.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Version is the protocol version written into every frame.
const Version uint8 = 1

// MaxPayload is the largest payload a decoder accepts.
const MaxPayload = 32 << 20

// headerSize is the size of the version, length and command fields.
const headerSize = 1 + 4 + 2

// Set of errors returned while decoding frames.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrDecode         = errors.New("decode failure")
)

// =============================================================================

// Command identifies the message carried by a frame.
type Command uint16

// Set of commands understood by the protocol.
const (
	CmdHeight Command = iota + 1
	CmdGetBlocks
	CmdInv
	CmdGetData
	CmdBlock
	CmdTx
)

var commandNames = map[Command]string{
	CmdHeight:    "HEIGHT",
	CmdGetBlocks: "GETBLOCKS",
	CmdInv:       "INV",
	CmdGetData:   "GETDATA",
	CmdBlock:     "BLOCK",
	CmdTx:        "TX",
}

// String implements the fmt.Stringer interface.
func (c Command) String() string {
	if name, exists := commandNames[c]; exists {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(c))
}

// =============================================================================

// Frame is a single undecoded message read off the wire.
type Frame struct {
	Version uint8
	Command Command
	Payload []byte
}

// Decoder reads frames from a byte stream. Bytes are buffered until the
// declared payload length is available.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder constructs a decoder over the reader.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadFrame blocks until a complete frame has been read. io.EOF is returned
// when the stream ends cleanly between frames.
func (d *Decoder) ReadFrame() (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read header: %w", err)
	}

	f := Frame{
		Version: header[0],
		Command: Command(binary.BigEndian.Uint16(header[5:7])),
	}

	if f.Version != Version {
		return Frame{}, fmt.Errorf("version %d: %w", f.Version, ErrDecode)
	}

	size := binary.BigEndian.Uint32(header[1:5])
	if size > MaxPayload {
		return Frame{}, fmt.Errorf("payload of %d bytes: %w", size, ErrDecode)
	}

	f.Payload = make([]byte, size)
	if _, err := io.ReadFull(d.r, f.Payload); err != nil {
		return Frame{}, fmt.Errorf("read payload: %w", err)
	}

	return f, nil
}

// Next reads and decodes the next message. A frame with an unknown command
// is consumed and ErrUnknownCommand returned, so the caller can keep
// reading.
func (d *Decoder) Next() (Message, error) {
	f, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}

	return Decode(f)
}

// =============================================================================

// Encode returns the complete frame for the message.
func Encode(msg Message) ([]byte, error) {
	var pw payloadWriter
	msg.encode(&pw)
	if pw.err != nil {
		return nil, pw.err
	}

	if len(pw.buf) > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(pw.buf), MaxPayload)
	}

	frame := make([]byte, headerSize, headerSize+len(pw.buf))
	frame[0] = Version
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(pw.buf)))
	binary.BigEndian.PutUint16(frame[5:7], uint16(msg.Command()))
	frame = append(frame, pw.buf...)

	return frame, nil
}

// WriteFrame encodes the message and writes the frame to w.
func WriteFrame(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", msg.Command(), err)
	}

	return nil
}

// Decode turns a frame into its message.
func Decode(f Frame) (Message, error) {
	decodeFn, exists := decoders[f.Command]
	if !exists {
		return nil, fmt.Errorf("command %d: %w", uint16(f.Command), ErrUnknownCommand)
	}

	pr := payloadReader{buf: f.Payload}
	msg := decodeFn(&pr)
	if pr.err == nil && len(pr.buf) != 0 {
		pr.err = fmt.Errorf("%d trailing bytes", len(pr.buf))
	}
	if pr.err != nil {
		return nil, fmt.Errorf("%s: %w: %w", f.Command, ErrDecode, pr.err)
	}

	return msg, nil
}
