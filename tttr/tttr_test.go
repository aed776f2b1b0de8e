package tttr

import "testing"

func TestDecodeRoundTrip(t *testing.T) {
	l := DefaultLayout
	if err := l.Validate(); err != nil {
		t.Fatalf("default layout invalid: %v", err)
	}
	for _, tc := range []struct {
		name string
		ev   Event
	}{
		{"zero", Event{}},
		{"photon", Event{Sync: 513, TimeBin: 12345, Channel: 3, Special: false}},
		{"max-sync", Event{Sync: 1023, TimeBin: 0, Channel: 0}},
		{"max-time", Event{Sync: 0, TimeBin: 32767, Channel: 0}},
		{"max-chan", Event{Sync: 0, TimeBin: 0, Channel: 63}},
		{"overflow-marker", Event{Sync: 2, Channel: 63, Special: true}},
		{"line-start", Event{Sync: 100, Channel: 2, Special: true}},
		{"all-max", Event{Sync: 1023, TimeBin: 32767, Channel: 63, Special: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := l.Decode(l.Pack(tc.ev))
			if got != tc.ev {
				t.Errorf("round trip mismatch: packed %v, decoded %v", tc.ev, got)
			}
		})
	}
}

func TestDecodeRoundTripExhaustiveFields(t *testing.T) {
	// sweep each field through its full range with the others pinned
	l := DefaultLayout
	for sync := uint32(0); sync < 1024; sync++ {
		ev := Event{Sync: sync, TimeBin: 7, Channel: 1}
		if got := l.Decode(l.Pack(ev)); got != ev {
			t.Fatalf("sync=%d: got %v", sync, got)
		}
	}
	for ch := 0; ch < 64; ch++ {
		ev := Event{Sync: 9, TimeBin: 7, Channel: uint8(ch), Special: ch%2 == 0}
		if got := l.Decode(l.Pack(ev)); got != ev {
			t.Fatalf("channel=%d: got %v", ch, got)
		}
	}
}

func TestDecodeKnownWord(t *testing.T) {
	// hand-packed word in the MultiHarp T3 layout:
	// special=1, channel=63, time=0, sync=5 -> a 5-wrap overflow marker
	r := Record(0x80000000 | 63<<25 | 5)
	ev := DefaultLayout.Decode(r)
	want := Event{Sync: 5, Channel: 63, Special: true}
	if ev != want {
		t.Errorf("decoded %+v, want %+v", ev, want)
	}
}

func TestLayoutValidate(t *testing.T) {
	bad := Layout{SyncBits: 10, TimeBits: 15, ChannelBits: 5}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for 31-bit layout, got nil")
	}
}

func TestClockMonotonic(t *testing.T) {
	const resolution = 12618 // ps, from a reference .ptu file
	l := DefaultLayout
	c := NewClock(l, DefaultMarkers, resolution)

	// a stream of photon syncs that wraps twice, with overflow markers
	// injected where the hardware would emit them
	stream := []Event{
		{Sync: 0}, {Sync: 100}, {Sync: 1023},
		{Sync: 1, Channel: 63, Special: true},
		{Sync: 0}, {Sync: 512},
		{Sync: 1, Channel: 63, Special: true},
		{Sync: 3}, {Sync: 1000},
	}
	var last uint64
	for i, ev := range stream {
		if c.Advance(ev) {
			continue
		}
		ts := c.TimestampPs(ev.Sync)
		if ts < last {
			t.Fatalf("timestamp regressed at event %d: %d < %d", i, ts, last)
		}
		last = ts
	}
	if c.Overflows() != 2 {
		t.Errorf("overflows = %d, want 2", c.Overflows())
	}
}

func TestClockMultiWrapOverflow(t *testing.T) {
	c := NewClock(DefaultLayout, DefaultMarkers, 1000)
	// low flux: hardware reports 7 wraps in one marker
	if !c.Advance(Event{Sync: 7, Channel: 63, Special: true}) {
		t.Fatal("overflow marker not consumed")
	}
	if got, want := c.TimestampPs(0), uint64(7*1024*1000); got != want {
		t.Errorf("timestamp after multi-wrap = %d, want %d", got, want)
	}
}

func TestClockIgnoresOtherMarkers(t *testing.T) {
	c := NewClock(DefaultLayout, DefaultMarkers, 1000)
	if c.Advance(Event{Sync: 5, Channel: 2, Special: true}) {
		t.Error("line start marker consumed as overflow")
	}
	if c.Advance(Event{Sync: 5, Channel: 63, Special: false}) {
		t.Error("non-special record consumed as overflow")
	}
	if c.Overflows() != 0 {
		t.Errorf("overflows = %d, want 0", c.Overflows())
	}
}
