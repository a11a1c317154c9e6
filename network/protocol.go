package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxPayloadSize is the largest accepted primary or secondary payload (256 MiB).
	MaxPayloadSize = 256 * 1024 * 1024

	kindText byte = 0x00
	kindFile byte = 0x01

	lengthPrefixSize = 4
)

var (
	// ErrFrameTooLarge indicates a payload exceeds MaxPayloadSize.
	ErrFrameTooLarge = errors.New("network: frame exceeds max size")
)

// Kind tells text frames from file frames.
type Kind int

const (
	KindText Kind = iota
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one protocol unit. Primary carries UTF-8 text or, for file
// frames, the file name. Secondary carries file content and is only
// meaningful when Kind is KindFile.
type Frame struct {
	Kind      Kind
	Primary   []byte
	Secondary []byte
}

// TextFrame builds a text frame.
func TextFrame(text string) Frame {
	return Frame{Kind: KindText, Primary: []byte(text)}
}

// FileFrame builds a file frame.
func FileFrame(name string, data []byte) Frame {
	return Frame{Kind: KindFile, Primary: []byte(name), Secondary: data}
}

// IsFile reports whether the frame carries a file.
func (f Frame) IsFile() bool {
	return f.Kind == KindFile
}

// IsEmpty reports whether the primary payload is empty. Empty frames are
// valid on the wire but carry nothing to show.
func (f Frame) IsEmpty() bool {
	return len(f.Primary) == 0
}

// Text returns the primary payload as a string.
func (f Frame) Text() string {
	return string(f.Primary)
}

// EncodeFrame serializes a frame:
//
//	byte   kind (0x00 text, 0x01 file)
//	int32  primary length, then primary bytes
//	int32  secondary length, then secondary bytes (file frames only)
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Primary) > MaxPayloadSize || len(f.Secondary) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	size := 1 + lengthPrefixSize + len(f.Primary)
	if f.IsFile() {
		size += lengthPrefixSize + len(f.Secondary)
	}

	out := make([]byte, 0, size)
	if f.IsFile() {
		out = append(out, kindFile)
	} else {
		out = append(out, kindText)
	}
	out = binary.BigEndian.AppendUint32(out, uint32(int32(len(f.Primary))))
	out = append(out, f.Primary...)
	if f.IsFile() {
		out = binary.BigEndian.AppendUint32(out, uint32(int32(len(f.Secondary))))
		out = append(out, f.Secondary...)
	}
	return out, nil
}

// WriteFrame encodes a frame and writes it with a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until one full frame has been read from r.
//
// A length of zero or less is accepted and yields an empty payload.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [1 + lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}

	frame := Frame{Kind: KindText}
	if header[0] != kindText {
		frame.Kind = KindFile
	}

	primary, err := readPayload(r, int32(binary.BigEndian.Uint32(header[1:])))
	if err != nil {
		return Frame{}, fmt.Errorf("read frame primary: %w", err)
	}
	frame.Primary = primary

	if !frame.IsFile() {
		return frame, nil
	}

	var lengthBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame secondary length: %w", err)
	}
	secondary, err := readPayload(r, int32(binary.BigEndian.Uint32(lengthBuf[:])))
	if err != nil {
		return Frame{}, fmt.Errorf("read frame secondary: %w", err)
	}
	frame.Secondary = secondary

	return frame, nil
}

func readPayload(r io.Reader, length int32) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}
	if length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, int(length))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
