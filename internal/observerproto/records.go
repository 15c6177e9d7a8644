package observerproto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Record kinds. Every record starts with its kind byte, then uvarint(id).
// Updates carry required torque, current speed and target speed as
// little-endian float32. A reset (id 0) tells the client to forget every
// network before applying the rest of the batch.
const (
	RecordUpdate  byte = 1
	RecordRemoved byte = 2
	RecordReset   byte = 3
)

// Frame flags, the first byte of every binary message.
const (
	FrameRaw  byte = 0
	FrameZstd byte = 1
)

// CompressAbove is the body size past which frames are zstd-compressed.
const CompressAbove = 512

var ErrMalformed = errors.New("observerproto: malformed frame")

type NetworkRecord struct {
	ID             uint64
	RequiredTorque float32
	CurrentSpeed   float32
	TargetSpeed    float32
	Removed        bool
	Reset          bool
}

// AppendRecord appends the wire form of r to dst.
func AppendRecord(dst []byte, r NetworkRecord) []byte {
	if r.Reset {
		return append(dst, RecordReset, 0)
	}
	if r.Removed {
		dst = append(dst, RecordRemoved)
		return binary.AppendUvarint(dst, r.ID)
	}
	dst = append(dst, RecordUpdate)
	dst = binary.AppendUvarint(dst, r.ID)
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(r.RequiredTorque))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(r.CurrentSpeed))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(r.TargetSpeed))
	return dst
}

// ReadRecord decodes one record from the front of b and returns the rest.
func ReadRecord(b []byte) (NetworkRecord, []byte, error) {
	if len(b) == 0 {
		return NetworkRecord{}, nil, fmt.Errorf("%w: empty record", ErrMalformed)
	}
	kind := b[0]
	id, n := binary.Uvarint(b[1:])
	if n <= 0 {
		return NetworkRecord{}, nil, fmt.Errorf("%w: bad id", ErrMalformed)
	}
	b = b[1+n:]
	switch kind {
	case RecordReset:
		return NetworkRecord{Reset: true}, b, nil
	case RecordRemoved:
		return NetworkRecord{ID: id, Removed: true}, b, nil
	case RecordUpdate:
		if len(b) < 12 {
			return NetworkRecord{}, nil, fmt.Errorf("%w: short update", ErrMalformed)
		}
		r := NetworkRecord{
			ID:             id,
			RequiredTorque: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
			CurrentSpeed:   math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
			TargetSpeed:    math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
		}
		return r, b[12:], nil
	default:
		return NetworkRecord{}, nil, fmt.Errorf("%w: record kind %d", ErrMalformed, kind)
	}
}

// EncodeBatch builds one binary frame: flag byte, then uvarint(tick),
// uvarint(count) and the records, compressed when the body is large.
func EncodeBatch(tick uint64, recs []NetworkRecord) []byte {
	body := make([]byte, 0, 16+len(recs)*16)
	body = binary.AppendUvarint(body, tick)
	body = binary.AppendUvarint(body, uint64(len(recs)))
	for _, r := range recs {
		body = AppendRecord(body, r)
	}
	if len(body) <= CompressAbove {
		return append([]byte{FrameRaw}, body...)
	}
	return encoder().EncodeAll(body, []byte{FrameZstd})
}

func DecodeBatch(frame []byte) (uint64, []NetworkRecord, error) {
	if len(frame) == 0 {
		return 0, nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	body := frame[1:]
	switch frame[0] {
	case FrameRaw:
	case FrameZstd:
		var err error
		body, err = decoder().DecodeAll(body, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	default:
		return 0, nil, fmt.Errorf("%w: frame flag %d", ErrMalformed, frame[0])
	}

	r := bytes.NewReader(body)
	tick, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: tick", ErrMalformed)
	}
	count, err := binary.ReadUvarint(r)
	if err != nil || count > uint64(len(body)) {
		return 0, nil, fmt.Errorf("%w: count", ErrMalformed)
	}
	rest := body[len(body)-r.Len():]
	recs := make([]NetworkRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		var rec NetworkRecord
		rec, rest, err = ReadRecord(rest)
		if err != nil {
			return 0, nil, err
		}
		recs = append(recs, rec)
	}
	if len(rest) != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return tick, recs, nil
}

var (
	codecOnce sync.Once
	enc       *zstd.Encoder
	dec       *zstd.Decoder
)

func initCodec() {
	var err error
	enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(err)
	}
	dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(err)
	}
}

func encoder() *zstd.Encoder {
	codecOnce.Do(initCodec)
	return enc
}

func decoder() *zstd.Decoder {
	codecOnce.Do(initCodec)
	return dec
}
