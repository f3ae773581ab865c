package emitter

import (
	"fmt"
	"time"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/vmihailenco/msgpack/v5"
)

// FrameEvent describes one saved edge image
type FrameEvent struct {
	RunID       string    `msgpack:"run_id"`
	Index       uint64    `msgpack:"index"` // 1-based, matches the frameNNN.pgm number
	Width       int       `msgpack:"width"`
	Height      int       `msgpack:"height"`
	EdgePixels  int       `msgpack:"edge_pixels"`
	EdgeDensity float64   `msgpack:"edge_density"` // EdgePixels / (Width*Height)
	Timestamp   time.Time `msgpack:"timestamp"`
}

// newFrameEvent counts edge pixels (value 0) in g.
func newFrameEvent(runID string, index uint64, g *cameracanny.Gray, now time.Time) *FrameEvent {
	ev := &FrameEvent{
		RunID:     runID,
		Index:     index,
		Width:     g.Width,
		Height:    g.Height,
		Timestamp: now,
	}
	for _, v := range g.Pix {
		if v == 0 {
			ev.EdgePixels++
		}
	}
	if n := g.Width * g.Height; n > 0 {
		ev.EdgeDensity = float64(ev.EdgePixels) / float64(n)
	}
	return ev
}

// EncodeFrameEvent returns the MessagePack payload for ev.
func EncodeFrameEvent(ev *FrameEvent) ([]byte, error) {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame event: %w", err)
	}
	return payload, nil
}

// EncodeReport returns the MessagePack payload for a run report.
func EncodeReport(r cameracanny.Report) ([]byte, error) {
	payload, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return payload, nil
}

// Topics derived from the configured prefix:
//
//	<prefix>/<client_id>/frames   one FrameEvent per saved image (QoS 0)
//	<prefix>/<client_id>/summary  the run Report (configured QoS)
func framesTopic(prefix, clientID string) string {
	return fmt.Sprintf("%s/%s/frames", prefix, clientID)
}

func summaryTopic(prefix, clientID string) string {
	return fmt.Sprintf("%s/%s/summary", prefix, clientID)
}
