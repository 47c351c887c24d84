// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// compact binary encoding for render batches (uvarint lengths, one byte kind codes)
package rtpack

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// upper bound on any decoded count or string length
const MaxItemCount = 1 << 24

// decoded counts are untrusted, slices grow past this only as data arrives
const MaxPreallocCount = 1024

type FullByteReader interface {
	io.ByteReader
	io.Reader
}

// Packer writes primitives to W.  the first write error is sticky.
type Packer struct {
	W   io.Writer
	Err error
	buf [binary.MaxVarintLen64]byte
}

func MakePacker(w io.Writer) *Packer {
	return &Packer{W: w}
}

func (p *Packer) write(barr []byte) {
	if p.Err != nil {
		return
	}
	_, p.Err = p.W.Write(barr)
}

func (p *Packer) PackByte(b byte) {
	p.buf[0] = b
	p.write(p.buf[0:1])
}

func (p *Packer) PackUint(uval uint64) {
	l := binary.PutUvarint(p.buf[:], uval)
	p.write(p.buf[0:l])
}

func (p *Packer) PackInt(ival int) {
	l := binary.PutVarint(p.buf[:], int64(ival))
	p.write(p.buf[0:l])
}

func (p *Packer) PackString(s string) {
	p.PackUint(uint64(len(s)))
	if len(s) > 0 {
		p.write([]byte(s))
	}
}

// presence byte, then the string if present
func (p *Packer) PackOptString(s *string) {
	if s == nil {
		p.PackByte(0)
		return
	}
	p.PackByte(1)
	p.PackString(*s)
}

func (p *Packer) Error() error {
	return p.Err
}

type Unpacker struct {
	R   FullByteReader
	Err error
}

func MakeUnpacker(r FullByteReader) *Unpacker {
	return &Unpacker{R: r}
}

func (u *Unpacker) setErr(name string, err error) {
	if u.Err == nil {
		u.Err = fmt.Errorf("cannot unpack %s: %w", name, err)
	}
}

func (u *Unpacker) UnpackByte(name string) byte {
	if u.Err != nil {
		return 0
	}
	rtn, err := u.R.ReadByte()
	if err != nil {
		u.setErr(name, err)
	}
	return rtn
}

func (u *Unpacker) UnpackUint(name string) uint64 {
	if u.Err != nil {
		return 0
	}
	rtn, err := binary.ReadUvarint(u.R)
	if err != nil {
		u.setErr(name, err)
	}
	return rtn
}

func (u *Unpacker) UnpackInt(name string) int {
	if u.Err != nil {
		return 0
	}
	rtn, err := binary.ReadVarint(u.R)
	if err != nil {
		u.setErr(name, err)
	}
	return int(rtn)
}

// UnpackCount reads a uvarint that sizes an allocation
func (u *Unpacker) UnpackCount(name string) int {
	count := u.UnpackUint(name)
	if u.Err != nil {
		return 0
	}
	if count > MaxItemCount {
		u.setErr(name, fmt.Errorf("count %d exceeds limit %d", count, MaxItemCount))
		return 0
	}
	return int(count)
}

func (u *Unpacker) UnpackString(name string) string {
	strLen := u.UnpackCount(name)
	if u.Err != nil || strLen == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(min(strLen, MaxPreallocCount))
	n, err := io.CopyN(&sb, u.R, int64(strLen))
	if err == io.EOF && n < int64(strLen) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		u.setErr(name, err)
		return ""
	}
	return sb.String()
}

func (u *Unpacker) UnpackOptString(name string) *string {
	present := u.UnpackByte(name)
	if u.Err != nil {
		return nil
	}
	switch present {
	case 0:
		return nil
	case 1:
		s := u.UnpackString(name)
		if u.Err != nil {
			return nil
		}
		return &s
	}
	u.setErr(name, fmt.Errorf("bad presence byte %d", present))
	return nil
}

func (u *Unpacker) Error() error {
	return u.Err
}
