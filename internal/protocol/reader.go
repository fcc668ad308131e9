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

package protocol

import (
	"encoding/binary"

	"github.com/sabouaram/drvshell/internal/errs"
)

var errProtocolBadType = errs.CodeProtocolBadType.Error()

// Frame is one fully-assembled message: its leading signature byte plus
// whatever body bytes follow it (the signature-specific layout is decoded
// separately by UnmarshalDrvInfo/UnmarshalDrvCommand/UnmarshalDrvResponse).
type Frame struct {
	Sig  Signature
	Body []byte
}

// Reassembler performs the two-phase read the per-client state machine
// needs: it owns how many bytes it still needs to see a complete frame and
// re-arms itself until satisfied, rather than recursing back through the
// I/O service on every partial read.
type Reassembler struct {
	buf  []byte
	need int
}

// Feed appends newly-read bytes to the reassembler. It returns a complete
// Frame and true once enough bytes have accumulated to decode one,
// otherwise ok is false and the caller should keep reading.
func (r *Reassembler) Feed(p []byte) (frame Frame, ok bool, err error) {
	r.buf = append(r.buf, p...)

	if len(r.buf) < 1 {
		return Frame{}, false, nil
	}

	sig := Signature(r.buf[0])
	body := r.buf[1:]

	need, complete, err := frameLength(sig, body)
	if err != nil {
		return Frame{}, false, err
	}
	if !complete {
		r.need = need
		return Frame{}, false, nil
	}

	frame = Frame{Sig: sig, Body: body[:need]}
	r.buf = append([]byte(nil), r.buf[1+need:]...)
	r.need = 0

	return frame, true, nil
}

// Pending reports how many more bytes the reassembler is waiting for, for
// callers that want to size their next read.
func (r *Reassembler) Pending() int {
	return r.need
}

// NextChunk reports how many bytes the caller's next Recv should request:
// 1 if no signature byte has been buffered yet (to learn the frame kind),
// otherwise the remaining body bytes the last Feed call determined the
// frame still needs. This lets a connection's recv loop request exactly
// what the current frame needs instead of over-reading past its boundary.
func (r *Reassembler) NextChunk() int {
	if len(r.buf) == 0 {
		return 1
	}
	remaining := r.need - (len(r.buf) - 1)
	if remaining < 1 {
		return 1
	}
	return remaining
}

// frameLength inspects the body accumulated so far and reports how many
// body bytes the frame declared by sig needs, and whether that many are
// already present.
func frameLength(sig Signature, body []byte) (need int, complete bool, err error) {
	switch sig {
	case SigDrvInfo:
		if len(body) < 4 {
			return 4, false, nil
		}
		n := binary.LittleEndian.Uint32(body[:4])
		const recSize = MaxCommandNameLen + 1 + MaxCommandDescriptionLen + 1 + 1
		total := 4 + int(n)*recSize
		return total, len(body) >= total, nil

	case SigDrvCommand:
		if len(body) < 8 {
			return 8, false, nil
		}
		argc := binary.LittleEndian.Uint32(body[4:8])
		off := 8
		for i := uint32(0); i < argc; i++ {
			if len(body) < off+1 {
				return off + 1, false, nil
			}
			l := int(body[off])
			off += 1 + l
		}
		return off, len(body) >= off, nil

	case SigDrvResponse:
		if len(body) < 4 {
			return 4, false, nil
		}
		n := binary.LittleEndian.Uint32(body[:4])
		total := 4 + int(n)
		return total, len(body) >= total, nil

	default:
		return 0, false, errProtocolBadType
	}
}
