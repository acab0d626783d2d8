// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package qvm

import (
	"encoding/binary"

	"github.com/samber/oops"
)

// Magic is the first word of every QVM image, stored little-endian.
const Magic = 0x12721444

// HeaderSize is the size of the fixed image header in bytes.
const HeaderSize = 32

// Header is the fixed-layout header at the front of a QVM image. All
// fields are little-endian int32 on disk.
type Header struct {
	Magic            int32
	InstructionCount int32
	CodeOffset       int32
	CodeLength       int32
	DataOffset       int32
	DataLength       int32
	LitLength        int32
	BSSLength        int32
}

// HasMagic reports whether b starts with the QVM magic.
func HasMagic(b []byte) bool {
	return len(b) >= 4 && binary.LittleEndian.Uint32(b) == Magic
}

// ParseHeader decodes and validates the header of image.
func ParseHeader(image []byte) (Header, error) {
	if len(image) < HeaderSize {
		return Header{}, oops.Code("QVM_BAD_HEADER").
			With("size", len(image)).
			Errorf("image too small for header")
	}
	var h Header
	fields := []*int32{
		&h.Magic, &h.InstructionCount, &h.CodeOffset, &h.CodeLength,
		&h.DataOffset, &h.DataLength, &h.LitLength, &h.BSSLength,
	}
	for i, f := range fields {
		*f = int32(binary.LittleEndian.Uint32(image[i*4:])) //nolint:gosec // reinterpreting on-disk int32
	}
	if err := h.Validate(len(image)); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Validate checks the header against an image of size bytes.
func (h Header) Validate(size int) error {
	errb := oops.Code("QVM_BAD_HEADER")
	if uint32(h.Magic) != Magic { //nolint:gosec // magic compared bitwise
		return errb.With("magic", uint32(h.Magic)).Errorf("bad magic %#08x", uint32(h.Magic)) //nolint:gosec // same
	}
	if h.InstructionCount <= 0 {
		return errb.With("instructions", h.InstructionCount).Errorf("no instructions")
	}
	for _, f := range []struct {
		name string
		v    int32
	}{
		{"code_offset", h.CodeOffset}, {"code_length", h.CodeLength},
		{"data_offset", h.DataOffset}, {"data_length", h.DataLength},
		{"lit_length", h.LitLength}, {"bss_length", h.BSSLength},
	} {
		if f.v < 0 {
			return errb.With(f.name, f.v).Errorf("negative %s", f.name)
		}
	}
	if h.DataLength%4 != 0 {
		return errb.With("data_length", h.DataLength).Errorf("data segment is not word aligned")
	}
	if int64(h.CodeOffset)+int64(h.CodeLength) > int64(size) {
		return errb.With("code_offset", h.CodeOffset).With("code_length", h.CodeLength).
			Errorf("code segment runs past end of image")
	}
	if int64(h.DataOffset)+int64(h.DataLength)+int64(h.LitLength) > int64(size) {
		return errb.With("data_offset", h.DataOffset).With("data_length", h.DataLength).
			Errorf("data segment runs past end of image")
	}
	return nil
}

// DataSize is the combined size of the data, lit and bss segments.
func (h Header) DataSize() int {
	return int(h.DataLength) + int(h.LitLength) + int(h.BSSLength)
}
