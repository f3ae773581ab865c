// Package latest implements the single-slot hand-off used by live capture:
// a producer never blocks and a consumer always gets the newest frame.
package latest

import cameracanny "github.com/e7canasta/camera-canny"

// NewSlot returns a channel suitable for Publish.
func NewSlot() chan *cameracanny.Frame {
	return make(chan *cameracanny.Frame, 1)
}

// Publish puts frame into slot, evicting a stale frame if the consumer has
// not taken it yet. It reports whether a frame was evicted.
//
// Only one goroutine may publish to a given slot.
func Publish(slot chan *cameracanny.Frame, frame *cameracanny.Frame) (evicted bool) {
	for {
		select {
		case slot <- frame:
			return evicted
		default:
		}
		select {
		case <-slot:
			evicted = true
		default:
		}
	}
}
