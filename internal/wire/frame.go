package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
)

// ErrUnexpectedEOF reports a stream that ended in the middle of a frame.
var ErrUnexpectedEOF = errors.New("stream closed mid frame")

// maxFrameSize bounds a single frame. A frame claiming more than this is
// treated as a decode error rather than an allocation request.
const maxFrameSize = 10 << 20

// FrameReader turns a byte stream into a sequence of protocol messages.
//
// Each frame is a uvarint length prefix followed by that many envelope
// bytes. Decoded envelopes pass through two filters before a message is
// yielded: the version stamp must match the local message version
// (mismatches are discarded with a warning), and BundleOfEnvelopes are
// unwrapped recursively so their inner messages surface in list order.
// At end of stream Next returns io.EOF; a truncated frame is
// ErrUnexpectedEOF instead.
type FrameReader struct {
	r       *bufio.Reader
	version MessageVersion
	pending []NetworkEnvelope // envelopes decoded but not yet yielded
	debug   bool
}

// NewFrameReader wraps a stream with the local message version used for
// inbound validation.
func NewFrameReader(r io.Reader, version MessageVersion, debug bool) *FrameReader {
	return &FrameReader{
		r:       bufio.NewReader(r),
		version: version,
		debug:   debug,
	}
}

// Next yields the next message. Order is preserved across bundle
// unwrapping: the first envelope of a bundle is yielded first.
func (fr *FrameReader) Next() (Message, error) {
	for {
		// Drain pending envelopes before touching the stream.
		for len(fr.pending) > 0 {
			env := fr.pending[0]
			fr.pending = fr.pending[1:]

			if env.MessageVersion != fr.version {
				log.Printf("wire: discarding envelope with version %d, local version is %d",
					env.MessageVersion, fr.version)
				continue
			}
			if bundle, ok := env.Message.(*BundleOfEnvelopes); ok {
				// Prepend the inner envelopes so the bundle's first
				// element is the next one out.
				fr.pending = append(append([]NetworkEnvelope{}, bundle.Envelopes...), fr.pending...)
				continue
			}
			if env.Message == nil {
				// Unknown kind; nothing to deliver.
				if fr.debug {
					log.Printf("wire: skipping envelope with unknown payload kind")
				}
				continue
			}
			return env.Message, nil
		}

		env, err := fr.readFrame()
		if err != nil {
			return nil, err
		}
		fr.pending = append(fr.pending, env)
	}
}

// readFrame reads one length-delimited envelope off the stream. The length
// prefix is a full multi-byte uvarint, so frames are not capped at 255
// bytes.
func (fr *FrameReader) readFrame() (NetworkEnvelope, error) {
	size, err := binary.ReadUvarint(fr.r)
	if err != nil {
		if err == io.EOF {
			return NetworkEnvelope{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return NetworkEnvelope{}, ErrUnexpectedEOF
		}
		return NetworkEnvelope{}, fmt.Errorf("read frame length: %w", err)
	}
	if size > maxFrameSize {
		return NetworkEnvelope{}, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrDecode, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return NetworkEnvelope{}, ErrUnexpectedEOF
		}
		return NetworkEnvelope{}, fmt.Errorf("read frame body: %w", err)
	}
	return DecodeEnvelope(buf)
}

// FrameWriter serializes messages onto a stream, one flushed frame each.
type FrameWriter struct {
	w       *bufio.Writer
	version MessageVersion
}

// NewFrameWriter wraps a stream with the version stamped on every
// outbound envelope.
func NewFrameWriter(w io.Writer, version MessageVersion) *FrameWriter {
	return &FrameWriter{w: bufio.NewWriter(w), version: version}
}

// Write frames one message and flushes it before returning.
func (fw *FrameWriter) Write(msg Message) error {
	body, err := EncodeEnvelope(NetworkEnvelope{MessageVersion: fw.version, Message: msg})
	if err != nil {
		return err
	}
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(body)))
	if _, err := fw.w.Write(prefix[:n]); err != nil {
		return err
	}
	if _, err := fw.w.Write(body); err != nil {
		return err
	}
	return fw.w.Flush()
}
