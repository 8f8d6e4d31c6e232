package audioplayer

// slot is one fixed-size audio buffer of the pool.
//
// A slot is either free or queued on the device. Every submission of a slot
// to the device gets a sequence number of its own, recorded on the slot, so
// a consumed callback arriving after the slot was freed (and perhaps queued
// again) does not match.
type slot struct {
	data   []byte
	length int

	queued bool
	// Sequence number of the submission that queued the slot, 0 when free
	handoff uint64
}

// handoff is the Buffer handed to the device for one submission of a slot.
// It is a value and is never modified, so a late callback always carries
// the sequence number it was submitted with.
type handoff struct {
	slot *slot
	seq  uint64
	data []byte
}

// Bytes implements audiodevice.Buffer.
func (h handoff) Bytes() []byte {
	return h.data
}

func (s *slot) free() {
	s.queued = false
	s.handoff = 0
	s.length = 0
}
