package malariago

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Checkpointing writes host state to a binary stream such that reading
// it back reproduces the original state exactly (byte-equal RNG state,
// numerically equal floats). Lists are written as a length prefix
// followed by elements. Errors are sticky: after the first failure all
// further operations are no-ops and Err returns the cause.

const maxCheckpointListLen = 1 << 24

// Encoder writes checkpoint data to a stream.
type Encoder struct {
	w   io.Writer
	err error
	buf [8]byte
}

// NewEncoder creates a checkpoint encoder writing to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Err returns the first error encountered, if any.
func (e *Encoder) Err() error { return e.err }

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	if _, err := e.w.Write(b); err != nil {
		e.err = err
	}
}

// U64 writes a 64-bit unsigned integer.
func (e *Encoder) U64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.write(e.buf[:8])
}

// I32 writes a 32-bit signed integer.
func (e *Encoder) I32(v int32) {
	binary.LittleEndian.PutUint32(e.buf[:4], uint32(v))
	e.write(e.buf[:4])
}

// Int writes an int (as 64 bits).
func (e *Encoder) Int(v int) { e.U64(uint64(int64(v))) }

// F64 writes a float64 bit pattern.
func (e *Encoder) F64(v float64) { e.U64(math.Float64bits(v)) }

// Bool writes a boolean.
func (e *Encoder) Bool(v bool) {
	if v {
		e.write([]byte{1})
	} else {
		e.write([]byte{0})
	}
}

// Time writes a SimTime.
func (e *Encoder) Time(t SimTime) { e.I32(int32(t)) }

// Len writes a list length prefix.
func (e *Encoder) Len(n int) { e.Int(n) }

// Bytes writes a length-prefixed byte slice.
func (e *Encoder) Bytes(b []byte) {
	e.Len(len(b))
	e.write(b)
}

// F64s writes a length-prefixed slice of floats.
func (e *Encoder) F64s(vs []float64) {
	e.Len(len(vs))
	for _, v := range vs {
		e.F64(v)
	}
}

// Decoder reads checkpoint data from a stream.
type Decoder struct {
	r   io.Reader
	err error
	buf [8]byte
}

// NewDecoder creates a checkpoint decoder reading from r.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// Err returns the first error encountered, if any.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) read(b []byte) {
	if d.err != nil {
		return
	}
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
	}
}

// U64 reads a 64-bit unsigned integer.
func (d *Decoder) U64() uint64 {
	d.read(d.buf[:8])
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(d.buf[:8])
}

// I32 reads a 32-bit signed integer.
func (d *Decoder) I32() int32 {
	d.read(d.buf[:4])
	if d.err != nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(d.buf[:4]))
}

// Int reads an int.
func (d *Decoder) Int() int { return int(int64(d.U64())) }

// F64 reads a float64.
func (d *Decoder) F64() float64 { return math.Float64frombits(d.U64()) }

// Bool reads a boolean.
func (d *Decoder) Bool() bool {
	d.read(d.buf[:1])
	return d.err == nil && d.buf[0] != 0
}

// Time reads a SimTime.
func (d *Decoder) Time() SimTime { return SimTime(d.I32()) }

// Len reads and validates a list length prefix.
func (d *Decoder) Len() int {
	n := d.Int()
	if n < 0 || n > maxCheckpointListLen {
		d.fail(errors.Errorf("checkpoint: implausible list length %d", n))
		return 0
	}
	return n
}

// Bytes reads a length-prefixed byte slice.
func (d *Decoder) Bytes() []byte {
	n := d.Len()
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	d.read(b)
	return b
}

// F64s reads a length-prefixed slice of floats.
func (d *Decoder) F64s() []float64 {
	n := d.Len()
	if d.err != nil {
		return nil
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = d.F64()
	}
	return vs
}
