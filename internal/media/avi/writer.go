// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package avi writes Motion JPEG streams into RIFF AVI containers.
package avi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// headerSize is the byte count in front of the first movi chunk.
	headerSize = 12 + 8 + hdrlSize + 12
	hdrlSize   = 4 + 64 + 124

	flagHasIndex = 0x10
	flagKeyFrame = 0x10
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("avi: writer closed")

// binaryWriter keeps the first write error so the header code stays linear.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) fourCC(s string) {
	if bw.err != nil {
		return
	}
	_, bw.err = io.WriteString(bw.w, s)
}

func (bw *binaryWriter) u32(v uint32) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) u16(v uint16) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) bytes(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(p)
}

type indexEntry struct {
	offset uint32
	size   uint32
}

// Writer streams JPEG frames into an AVI file. The header is written with
// placeholder counts and patched on Close, so the output must be seekable.
type Writer struct {
	w        io.WriteSeeker
	width    int
	height   int
	fps      int
	index    []indexEntry
	moviSize uint32
	maxFrame uint32
	written  int64
	closed   bool
}

// NewWriter writes the placeholder header for a width x height stream at fps.
func NewWriter(w io.WriteSeeker, width, height, fps int) (*Writer, error) {
	if width <= 0 || height <= 0 || width > math.MaxUint16 || height > math.MaxUint16 {
		return nil, fmt.Errorf("avi: invalid frame size %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("avi: invalid frame rate %d", fps)
	}
	aw := &Writer{w: w, width: width, height: height, fps: fps, moviSize: 4}
	if err := aw.writeHeader(); err != nil {
		return nil, err
	}
	aw.written = headerSize
	return aw, nil
}

// WriteFrame appends one JPEG-encoded frame as a keyframe chunk.
func (aw *Writer) WriteFrame(jpegData []byte) error {
	if aw.closed {
		return ErrClosed
	}
	size := uint32(len(jpegData))
	chunk := 8 + size + size%2
	if aw.written+int64(chunk)+8+16*int64(len(aw.index)+1) > math.MaxUint32 {
		return errors.New("avi: file exceeds 4 GiB")
	}

	bw := &binaryWriter{w: aw.w}
	bw.fourCC("00dc")
	bw.u32(size)
	bw.bytes(jpegData)
	if size%2 != 0 {
		bw.bytes([]byte{0})
	}
	if bw.err != nil {
		return fmt.Errorf("avi: write frame: %w", bw.err)
	}

	aw.index = append(aw.index, indexEntry{offset: aw.moviSize, size: size})
	aw.moviSize += chunk
	aw.written += int64(chunk)
	aw.maxFrame = max(aw.maxFrame, size)
	return nil
}

// Frames returns the number of frames written so far.
func (aw *Writer) Frames() int { return len(aw.index) }

// Close appends the idx1 index, patches the header and returns the file size.
// The underlying writer is left open.
func (aw *Writer) Close() (int64, error) {
	if aw.closed {
		return 0, ErrClosed
	}
	aw.closed = true

	bw := &binaryWriter{w: aw.w}
	bw.fourCC("idx1")
	bw.u32(uint32(len(aw.index) * 16))
	for _, e := range aw.index {
		bw.fourCC("00dc")
		bw.u32(flagKeyFrame)
		bw.u32(e.offset)
		bw.u32(e.size)
	}
	if bw.err != nil {
		return 0, fmt.Errorf("avi: write index: %w", bw.err)
	}
	aw.written += 8 + int64(len(aw.index))*16

	if _, err := aw.w.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("avi: seek header: %w", err)
	}
	if err := aw.writeHeader(); err != nil {
		return 0, err
	}
	if _, err := aw.w.Seek(aw.written, io.SeekStart); err != nil {
		return 0, fmt.Errorf("avi: seek end: %w", err)
	}
	return aw.written, nil
}

func (aw *Writer) writeHeader() error {
	frames := uint32(len(aw.index))
	w, h := uint32(aw.width), uint32(aw.height)
	fps := uint32(aw.fps)
	riffSize := uint32(aw.written) - 8
	if aw.written == 0 {
		riffSize = headerSize - 8
	}

	var buf bytes.Buffer
	buf.Grow(headerSize)
	bw := &binaryWriter{w: &buf}

	bw.fourCC("RIFF")
	bw.u32(riffSize)
	bw.fourCC("AVI ")

	bw.fourCC("LIST")
	bw.u32(hdrlSize)
	bw.fourCC("hdrl")

	bw.fourCC("avih")
	bw.u32(56)
	bw.u32(uint32(1_000_000 / aw.fps))
	bw.u32(aw.maxFrame * fps) // max bytes/sec
	bw.u32(0)                 // padding granularity
	bw.u32(flagHasIndex)
	bw.u32(frames)
	bw.u32(0) // initial frames
	bw.u32(1) // streams
	bw.u32(aw.maxFrame)
	bw.u32(w)
	bw.u32(h)
	bw.u32(0)
	bw.u32(0)
	bw.u32(0)
	bw.u32(0)

	bw.fourCC("LIST")
	bw.u32(116)
	bw.fourCC("strl")

	bw.fourCC("strh")
	bw.u32(56)
	bw.fourCC("vids")
	bw.fourCC("MJPG")
	bw.u32(0) // flags
	bw.u16(0) // priority
	bw.u16(0) // language
	bw.u32(0) // initial frames
	bw.u32(1) // scale
	bw.u32(fps)
	bw.u32(0) // start
	bw.u32(frames)
	bw.u32(aw.maxFrame)
	bw.u32(math.MaxUint32) // default quality
	bw.u32(0)              // sample size
	bw.u16(0)
	bw.u16(0)
	bw.u16(uint16(w))
	bw.u16(uint16(h))

	bw.fourCC("strf")
	bw.u32(40)
	bw.u32(40)
	bw.u32(w)
	bw.u32(h)
	bw.u16(1)  // planes
	bw.u16(24) // bpp
	bw.fourCC("MJPG")
	bw.u32(w * h * 3)
	bw.u32(0)
	bw.u32(0)
	bw.u32(0)
	bw.u32(0)

	bw.fourCC("LIST")
	bw.u32(aw.moviSize)
	bw.fourCC("movi")

	if bw.err != nil {
		return bw.err
	}
	if _, err := aw.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("avi: write header: %w", err)
	}
	return nil
}
