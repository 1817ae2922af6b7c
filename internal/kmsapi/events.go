package kmsapi

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event is the decoded form of a single DRM event read from the device fd:
// a page-flip completion (or, on legacy kernels, a plain vblank event).
type Event struct {
	Sequence uint32
	TVSec    uint32
	TVUsec   uint32
	UserData uint64
	CrtcID   uint32 // 0 on kernels that don't report it (single-CRTC event)
}

// DrainEvents performs one blocking read on the device fd and decodes every
// event packed into the kernel's buffer, matching srmlib's page-flip wait:
// the device event stream can coalesce multiple CRTCs' completions into one
// read.
func DrainEvents(fd int) ([]Event, error) {
	buf := make([]byte, 4096)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n]

	var events []Event
	for len(buf) >= int(unsafe.Sizeof(eventHeader{})) {
		typ := binary.LittleEndian.Uint32(buf[0:4])
		length := binary.LittleEndian.Uint32(buf[4:8])
		if length == 0 || int(length) > len(buf) {
			break
		}
		body := buf[8:length]
		switch typ {
		case eventTypeVblank, eventTypeFlipComplete:
			if len(body) >= 20 {
				ev := Event{
					UserData: binary.LittleEndian.Uint64(body[0:8]),
					TVSec:    binary.LittleEndian.Uint32(body[8:12]),
					TVUsec:   binary.LittleEndian.Uint32(body[12:16]),
					Sequence: binary.LittleEndian.Uint32(body[16:20]),
				}
				if len(body) >= 24 {
					ev.CrtcID = binary.LittleEndian.Uint32(body[20:24])
				}
				events = append(events, ev)
			}
		}
		buf = buf[length:]
	}
	return events, nil
}
