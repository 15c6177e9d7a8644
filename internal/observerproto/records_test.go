package observerproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordLayout(t *testing.T) {
	b := AppendRecord(nil, NetworkRecord{ID: 300, RequiredTorque: 1, CurrentSpeed: 0.5, TargetSpeed: 2})
	// kind, two uvarint bytes for 300, three float32.
	require.Len(t, b, 1+2+12)
	require.Equal(t, RecordUpdate, b[0])
	require.Equal(t, []byte{0xac, 0x02}, b[1:3])
	require.Equal(t, []byte{0, 0, 0x80, 0x3f}, b[3:7])

	gone := AppendRecord(nil, NetworkRecord{ID: 7, Removed: true})
	require.Equal(t, []byte{RecordRemoved, 7}, gone)

	reset := AppendRecord(nil, NetworkRecord{ID: 9, Reset: true})
	require.Equal(t, []byte{RecordReset, 0}, reset)
}

func TestBatchSmallStaysRaw(t *testing.T) {
	recs := []NetworkRecord{
		{Reset: true},
		{ID: 1, RequiredTorque: 3, CurrentSpeed: 0.05, TargetSpeed: 0.1},
		{ID: 2, Removed: true},
	}
	frame := EncodeBatch(42, recs)
	require.Equal(t, FrameRaw, frame[0])

	tick, got, err := DecodeBatch(frame)
	require.NoError(t, err)
	require.Equal(t, uint64(42), tick)
	require.Equal(t, recs, got)
}

func TestBatchLargeIsCompressed(t *testing.T) {
	recs := make([]NetworkRecord, 100)
	for i := range recs {
		recs[i] = NetworkRecord{ID: uint64(i + 1), TargetSpeed: 0.1}
	}
	frame := EncodeBatch(7, recs)
	require.Equal(t, FrameZstd, frame[0])
	require.Less(t, len(frame), 100*14)

	tick, got, err := DecodeBatch(frame)
	require.NoError(t, err)
	require.Equal(t, uint64(7), tick)
	require.Equal(t, recs, got)
}

func TestDecodeBatchRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":         nil,
		"bad flag":      {9, 0, 0},
		"short update":  {FrameRaw, 1, 1, RecordUpdate, 5, 0, 0},
		"unknown kind":  {FrameRaw, 1, 1, 77, 5},
		"trailing":      {FrameRaw, 1, 1, RecordRemoved, 5, 0xff},
		"bad zstd":      {FrameZstd, 1, 2, 3},
		"count too big": {FrameRaw, 1, 0x7f},
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeBatch(frame)
			require.True(t, errors.Is(err, ErrMalformed), "%v", err)
		})
	}
}
