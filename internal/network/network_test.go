package network

import (
	"testing"

	"meshkv/internal/meshaddr"
)

func addr(n byte) meshaddr.Address {
	return meshaddr.New([4]byte{0, 0, 0, n}, 9000+uint16(n))
}

func TestSendAndDrainFIFO(t *testing.T) {
	e := NewEmulator(1)
	a, b := addr(1), addr(2)

	e.Send(a, b, []byte("first"))
	e.Send(a, b, []byte("second"))

	frames := e.Drain(b)
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if string(frames[0].Data) != "first" || string(frames[1].Data) != "second" {
		t.Fatalf("frames not in FIFO order: %+v", frames)
	}
}

func TestDrainEmptiesInbox(t *testing.T) {
	e := NewEmulator(1)
	a, b := addr(1), addr(2)

	e.Send(a, b, []byte("x"))
	e.Drain(b)

	if got := e.Pending(b); got != 0 {
		t.Fatalf("Pending after Drain = %d, want 0", got)
	}
}

func TestDropRateZeroIsReliable(t *testing.T) {
	e := NewEmulator(1)
	a, b := addr(1), addr(2)

	for i := 0; i < 50; i++ {
		e.Send(a, b, []byte("x"))
	}
	if got := e.Pending(b); got != 50 {
		t.Fatalf("Pending = %d, want 50 with DropRate=0", got)
	}
}

func TestDropRateOneDropsEverything(t *testing.T) {
	e := NewEmulator(1)
	e.DropRate = 1.0
	a, b := addr(1), addr(2)

	for i := 0; i < 20; i++ {
		e.Send(a, b, []byte("x"))
	}
	if got := e.Pending(b); got != 0 {
		t.Fatalf("Pending = %d, want 0 with DropRate=1", got)
	}
}

func TestNoSelfDeliveryAcrossAddresses(t *testing.T) {
	e := NewEmulator(1)
	a, b := addr(1), addr(2)
	e.Send(a, b, []byte("x"))

	if got := e.Pending(a); got != 0 {
		t.Fatalf("sender inbox Pending = %d, want 0", got)
	}
}
