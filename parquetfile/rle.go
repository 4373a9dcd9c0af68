package parquetfile

import (
	"encoding/binary"
	"math/bits"
)

const (
	// A bit-packed run header is a single reserved byte, so one run holds at
	// most 63 groups of 8 values.
	maxLiteralGroups = 1<<6 - 1
	groupSize        = 8
)

// rleEncoder writes the RLE/bit-packed hybrid encoding used for repetition
// levels, definition levels and dictionary indices.
//
// Values are buffered in groups of 8. A group whose values are all equal
// starts (or extends) an RLE run: varint(count<<1) followed by the value in
// ceil(bitWidth/8) little-endian bytes. Other groups are appended to a
// bit-packed run: one header byte (groups<<1 | 1) followed by each group
// packed LSB first into bitWidth bytes.
type rleEncoder struct {
	bitWidth    int
	valueBytes  int
	limit       int
	maxRunBytes int
	buf         []byte

	buffered    [groupSize]uint32
	numBuffered int
	current     uint32
	repeatCount int

	// Values written to the open bit-packed run, and the offset of its
	// header byte in buf (-1 when no run is open).
	literalCount     int
	literalIndicator int
}

func newRLEEncoder(bitWidth, limit int) *rleEncoder {
	e := &rleEncoder{
		bitWidth:   bitWidth,
		valueBytes: (bitWidth + 7) / 8,
		limit:      limit,
	}
	e.maxRunBytes = max(
		1+maxLiteralGroups*bitWidth,
		binary.MaxVarintLen32+e.valueBytes,
	)
	e.Reset()
	return e
}

// levelBitWidth returns the bit width needed for levels in [0, maxLevel].
func levelBitWidth(maxLevel int) int {
	return bits.Len(uint(maxLevel))
}

// Put appends one value.
func (e *rleEncoder) Put(v uint32) {
	if v == e.current {
		e.repeatCount++
		if e.repeatCount > groupSize {
			// Continuation of a pending RLE run.
			return
		}
	} else {
		if e.repeatCount >= groupSize {
			e.flushRepeatedRun()
		}
		e.repeatCount = 1
		e.current = v
	}

	e.buffered[e.numBuffered] = v
	e.numBuffered++
	if e.numBuffered == groupSize {
		e.flushBufferedValues(false)
	}
}

// Full reports whether another run might not fit in the encoder's budget.
func (e *rleEncoder) Full() bool {
	return len(e.buf)+e.maxRunBytes > e.limit
}

// Flush terminates any open run. Partial bit-packed groups are padded with
// zeros; readers stop at the page value count.
func (e *rleEncoder) Flush() {
	if e.literalCount == 0 && e.repeatCount == 0 && e.numBuffered == 0 {
		return
	}
	allRepeat := e.literalCount == 0 && (e.repeatCount == e.numBuffered || e.numBuffered == 0)
	if e.repeatCount > 0 && allRepeat {
		e.flushRepeatedRun()
		return
	}
	if e.numBuffered > 0 {
		for ; e.numBuffered < groupSize; e.numBuffered++ {
			e.buffered[e.numBuffered] = 0
		}
	}
	e.literalCount += e.numBuffered
	e.flushLiteralRun(true)
	e.repeatCount = 0
}

// Len returns the number of encoded bytes.
func (e *rleEncoder) Len() int { return len(e.buf) }

// Bytes returns the encoded bytes, valid until the next Reset.
func (e *rleEncoder) Bytes() []byte { return e.buf }

// Reset discards all state, keeping the output buffer for reuse.
func (e *rleEncoder) Reset() {
	e.buf = e.buf[:0]
	e.numBuffered = 0
	e.current = 0
	e.repeatCount = 0
	e.literalCount = 0
	e.literalIndicator = -1
}

func (e *rleEncoder) flushBufferedValues(done bool) {
	if e.repeatCount >= groupSize {
		// The buffered group belongs to the RLE run.
		e.numBuffered = 0
		if e.literalCount != 0 {
			e.flushLiteralRun(true)
		}
		return
	}

	e.literalCount += e.numBuffered
	groups := (e.literalCount + groupSize - 1) / groupSize
	if groups+1 >= 1<<6 {
		e.flushLiteralRun(true)
	} else {
		e.flushLiteralRun(done)
	}
	e.repeatCount = 0
}

func (e *rleEncoder) flushLiteralRun(closeRun bool) {
	if e.literalIndicator < 0 {
		e.literalIndicator = len(e.buf)
		e.buf = append(e.buf, 0)
	}
	if e.numBuffered > 0 {
		e.packGroup()
		e.numBuffered = 0
	}
	if closeRun {
		groups := e.literalCount / groupSize
		e.buf[e.literalIndicator] = byte(groups<<1 | 1)
		e.literalIndicator = -1
		e.literalCount = 0
	}
}

func (e *rleEncoder) flushRepeatedRun() {
	e.buf = binary.AppendUvarint(e.buf, uint64(e.repeatCount)<<1)
	v := e.current
	for i := 0; i < e.valueBytes; i++ {
		e.buf = append(e.buf, byte(v))
		v >>= 8
	}
	e.numBuffered = 0
	e.repeatCount = 0
}

// packGroup appends the 8 buffered values, bitWidth bits each, LSB first.
func (e *rleEncoder) packGroup() {
	mask := uint64(1)<<e.bitWidth - 1
	var acc uint64
	var n int
	for _, v := range e.buffered {
		acc |= (uint64(v) & mask) << n
		n += e.bitWidth
		for n >= 8 {
			e.buf = append(e.buf, byte(acc))
			acc >>= 8
			n -= 8
		}
	}
}
