package registry

import "testing"

func TestDedupRingEmptyContainsNothing(t *testing.T) {
	r := NewDedupRing(0)
	if r.Contains(0) {
		t.Fatal("Contains(0) on a fresh ring, want false")
	}
	if !r.Contains(emptySlot) {
		t.Fatal("Contains(emptySlot) on a fresh ring, want true (every slot is the sentinel)")
	}
}

func TestDedupRingObserveAndContains(t *testing.T) {
	r := NewDedupRing(0)
	r.Observe(7)
	if !r.Contains(7) {
		t.Fatal("Contains(7) after Observe(7), want true")
	}
	if r.Contains(8) {
		t.Fatal("Contains(8), want false")
	}
}

func TestDedupRingWrapsAndForgetsOldest(t *testing.T) {
	r := NewDedupRing(0)
	for i := 0; i < DefaultRingSize; i++ {
		r.Observe(uint16(i))
	}
	if !r.Contains(0) {
		t.Fatal("Contains(0) before wrap, want true")
	}
	r.Observe(uint16(DefaultRingSize)) // overwrites slot holding seq 0
	if r.Contains(0) {
		t.Fatal("Contains(0) after the slot holding it was overwritten, want false")
	}
	if !r.Contains(uint16(DefaultRingSize)) {
		t.Fatal("Contains(DefaultRingSize) after Observe, want true")
	}
}

func TestDedupRingHonorsConfiguredSize(t *testing.T) {
	r := NewDedupRing(3)
	for seq := uint16(1); seq <= 3; seq++ {
		r.Observe(seq)
	}
	if !r.Contains(1) {
		t.Fatal("Contains(1) with the ring exactly full, want true")
	}
	r.Observe(4) // overwrites the slot holding seq 1
	if r.Contains(1) {
		t.Fatal("Contains(1) after wrap in a 3-slot ring, want false")
	}
	if !r.Contains(4) || !r.Contains(2) || !r.Contains(3) {
		t.Fatal("ring lost a sequence it should still hold")
	}
}

func TestDedupRingSequenceWrap(t *testing.T) {
	r := NewDedupRing(0)
	r.Observe(0xFFFE)
	r.Observe(0x0000)
	if !r.Contains(0xFFFE) || !r.Contains(0x0000) {
		t.Fatal("sequences either side of the wrap boundary were lost")
	}
	// 0xFFFF collides with the empty-slot sentinel: a device emitting it
	// is misreported as a duplicate. Documented protocol limitation.
	if !r.Contains(0xFFFF) {
		t.Fatal("Contains(0xFFFF), want true via the sentinel collision")
	}
}

func TestDedupRingReset(t *testing.T) {
	r := NewDedupRing(0)
	r.Observe(42)
	r.Reset()
	if r.Contains(42) {
		t.Fatal("Contains(42) after Reset, want false")
	}
}
