package kmsapi

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeEvent(t *testing.T, typ uint32, userData uint64, sec, usec, seq, crtc uint32) []byte {
	t.Helper()
	body := make([]byte, 24)
	binary.LittleEndian.PutUint64(body[0:8], userData)
	binary.LittleEndian.PutUint32(body[8:12], sec)
	binary.LittleEndian.PutUint32(body[12:16], usec)
	binary.LittleEndian.PutUint32(body[16:20], seq)
	binary.LittleEndian.PutUint32(body[20:24], crtc)

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], typ)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(header)+len(body)))

	return append(header, body...)
}

func TestDrainEventsDecodesFlipComplete(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	packet := encodeEvent(t, eventTypeFlipComplete, 0xabcd, 10, 20, 30, 7)
	_, err = w.Write(packet)
	require.NoError(t, err)
	w.Close()

	events, err := DrainEvents(int(r.Fd()))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, uint64(0xabcd), events[0].UserData)
	require.Equal(t, uint32(10), events[0].TVSec)
	require.Equal(t, uint32(20), events[0].TVUsec)
	require.Equal(t, uint32(30), events[0].Sequence)
	require.Equal(t, uint32(7), events[0].CrtcID)
}

func TestDrainEventsIgnoresUnknownType(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	packet := encodeEvent(t, 0xff, 1, 2, 3, 4, 5)
	_, err = w.Write(packet)
	require.NoError(t, err)
	w.Close()

	events, err := DrainEvents(int(r.Fd()))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestDrainEventsDecodesMultiplePackedEvents(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	packet := append(
		encodeEvent(t, eventTypeFlipComplete, 1, 0, 0, 1, 1),
		encodeEvent(t, eventTypeFlipComplete, 2, 0, 0, 2, 2)...,
	)
	_, err = w.Write(packet)
	require.NoError(t, err)
	w.Close()

	events, err := DrainEvents(int(r.Fd()))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, uint64(1), events[0].UserData)
	require.Equal(t, uint64(2), events[1].UserData)
}
