package kmsapi

import "testing"

func TestIocEncodesLinuxIoctlLayout(t *testing.T) {
	const (
		sizeofCapGet = 16 // two uint64 fields
	)
	got := iowr(nrGetCap, sizeofCapGet)

	wantDir := uintptr(iocRead | iocWrite)
	wantType := uintptr(drmIoctlBase)
	wantNr := uintptr(nrGetCap)
	wantSize := uintptr(sizeofCapGet)
	want := (wantDir << iocDirShift) | (wantType << iocTypeShift) | (wantNr << iocNRShift) | (wantSize << iocSizeShift)

	if got != want {
		t.Fatalf("iowr(nrGetCap, %d) = %#x, want %#x", sizeofCapGet, got, want)
	}
}

func TestIoHasNoDirectionOrSize(t *testing.T) {
	got := io(0x01)
	want := uintptr(drmIoctlBase)<<iocTypeShift | 0x01
	if got != want {
		t.Fatalf("io(0x01) = %#x, want %#x", got, want)
	}
}

func TestIowSetsWriteDirection(t *testing.T) {
	got := iow(nrSetClientCap, 16)
	if got&(uintptr(iocWrite)<<iocDirShift) == 0 {
		t.Fatalf("iow result missing write direction bit: %#x", got)
	}
	if got&(uintptr(iocRead)<<iocDirShift) != 0 {
		t.Fatalf("iow result should not set read direction bit: %#x", got)
	}
}
