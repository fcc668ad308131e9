/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package protocol implements the length-prefixed wire codec spoken between
// the broker and each driver socket: PR_DRV_INFO, PR_DRV_COMMAND, and
// PR_DRV_RESPONSE. Every multi-byte field is little-endian, packed with
// encoding/binary rather than via struct casts, so the wire layout never
// depends on the host's struct alignment.
package protocol

import (
	"encoding/binary"

	"github.com/sabouaram/drvshell/internal/errs"
)

// Signature is the leading byte of every frame on the wire.
type Signature byte

const (
	SigDrvInfo     Signature = 1
	SigDrvCommand  Signature = 2
	SigDrvResponse Signature = 3
)

const (
	// MaxCommandNameLen bounds CommandDescriptor.Name, matching the
	// engine's fixed constant; descriptors are null-terminated on receive.
	MaxCommandNameLen = 63
	// MaxCommandDescriptionLen bounds CommandDescriptor.Descr.
	MaxCommandDescriptionLen = 255
	// MaxArgLen is the largest size an argument's length-prefix (u8) can
	// express.
	MaxArgLen = 255
)

// CommandDescriptor describes one command a driver advertises in its
// PR_DRV_INFO frame. The position of a descriptor within the frame's
// vector is its command index on the wire (used later in PR_DRV_COMMAND's
// cmd_idx field).
type CommandDescriptor struct {
	Name  string
	Arity uint8
	Descr string
}

// DrvInfo is the unsolicited frame a driver sends as the first message
// after connecting, advertising its command set.
type DrvInfo struct {
	Commands []CommandDescriptor
}

// MarshalBinary packs a DrvInfo frame: signature, commands_number (u32),
// then commands_number * {name[MaxCommandNameLen+1], descr[MaxCommandDescriptionLen+1], arity u8}.
func (d DrvInfo) MarshalBinary() ([]byte, error) {
	const recSize = MaxCommandNameLen + 1 + MaxCommandDescriptionLen + 1 + 1

	buf := make([]byte, 0, 1+4+len(d.Commands)*recSize)
	buf = append(buf, byte(SigDrvInfo))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(d.Commands)))

	for _, c := range d.Commands {
		if len(c.Name) > MaxCommandNameLen {
			return nil, errs.CodeProtocolTooLarge.Error()
		}
		if len(c.Descr) > MaxCommandDescriptionLen {
			return nil, errs.CodeProtocolTooLarge.Error()
		}

		name := make([]byte, MaxCommandNameLen+1)
		copy(name, c.Name)
		descr := make([]byte, MaxCommandDescriptionLen+1)
		copy(descr, c.Descr)

		buf = append(buf, name...)
		buf = append(buf, descr...)
		buf = append(buf, c.Arity)
	}

	return buf, nil
}

// UnmarshalDrvInfo parses a PR_DRV_INFO frame body (signature already
// consumed by the caller's state machine).
func UnmarshalDrvInfo(body []byte) (DrvInfo, error) {
	const recSize = MaxCommandNameLen + 1 + MaxCommandDescriptionLen + 1 + 1

	if len(body) < 4 {
		return DrvInfo{}, errs.CodeProtocolShort.Error()
	}

	n := binary.LittleEndian.Uint32(body[:4])
	body = body[4:]

	if uint64(len(body)) < uint64(n)*recSize {
		return DrvInfo{}, errs.CodeProtocolShort.Error()
	}

	out := DrvInfo{Commands: make([]CommandDescriptor, 0, n)}
	for i := uint32(0); i < n; i++ {
		rec := body[i*recSize : (i+1)*recSize]
		name := cstring(rec[:MaxCommandNameLen+1])
		descr := cstring(rec[MaxCommandNameLen+1 : MaxCommandNameLen+1+MaxCommandDescriptionLen+1])
		arity := rec[recSize-1]
		out.Commands = append(out.Commands, CommandDescriptor{Name: name, Arity: arity, Descr: descr})
	}

	return out, nil
}

// DrvCommand is sent by the shell to invoke one command on a driver by its
// advertised index, with a vector of length-prefixed byte arguments.
type DrvCommand struct {
	CmdIdx uint32
	Args   [][]byte
}

// MarshalBinary packs a DrvCommand frame: signature, cmd_idx (u32), argc
// (u32), then argc * {len u8, bytes[len]}.
func (c DrvCommand) MarshalBinary() ([]byte, error) {
	size := 1 + 4 + 4
	for _, a := range c.Args {
		if len(a) > MaxArgLen {
			return nil, errs.CodeProtocolTooLarge.Error()
		}
		size += 1 + len(a)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(SigDrvCommand))
	buf = binary.LittleEndian.AppendUint32(buf, c.CmdIdx)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Args)))

	for _, a := range c.Args {
		buf = append(buf, byte(len(a)))
		buf = append(buf, a...)
	}

	return buf, nil
}

// UnmarshalDrvCommand parses a PR_DRV_COMMAND frame body.
func UnmarshalDrvCommand(body []byte) (DrvCommand, error) {
	if len(body) < 8 {
		return DrvCommand{}, errs.CodeProtocolShort.Error()
	}

	cmdIdx := binary.LittleEndian.Uint32(body[:4])
	argc := binary.LittleEndian.Uint32(body[4:8])
	body = body[8:]

	args := make([][]byte, 0, argc)
	for i := uint32(0); i < argc; i++ {
		if len(body) < 1 {
			return DrvCommand{}, errs.CodeProtocolShort.Error()
		}
		l := int(body[0])
		body = body[1:]
		if len(body) < l {
			return DrvCommand{}, errs.CodeProtocolShort.Error()
		}
		arg := make([]byte, l)
		copy(arg, body[:l])
		args = append(args, arg)
		body = body[l:]
	}

	return DrvCommand{CmdIdx: cmdIdx, Args: args}, nil
}

// DrvResponse is sent by the driver after executing a command.
type DrvResponse struct {
	Payload []byte
}

// MarshalBinary packs a DrvResponse frame: signature, len (u32), bytes[len].
func (r DrvResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 1+4+len(r.Payload))
	buf = append(buf, byte(SigDrvResponse))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Payload)))
	buf = append(buf, r.Payload...)
	return buf, nil
}

// UnmarshalDrvResponse parses a PR_DRV_RESPONSE frame body.
func UnmarshalDrvResponse(body []byte) (DrvResponse, error) {
	if len(body) < 4 {
		return DrvResponse{}, errs.CodeProtocolShort.Error()
	}
	n := binary.LittleEndian.Uint32(body[:4])
	body = body[4:]
	if uint64(len(body)) < uint64(n) {
		return DrvResponse{}, errs.CodeProtocolShort.Error()
	}
	payload := make([]byte, n)
	copy(payload, body[:n])
	return DrvResponse{Payload: payload}, nil
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
