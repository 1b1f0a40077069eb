// Package sensor defines the time-stamped measurement types the pipeline
// consumes and a replayable time-ordered source over a recorded log.
package sensor

import (
	"github.com/golang/geo/r3"

	"github.com/gaoxiang12/slam-in-ad-en/gnss"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
)

// IMU is one inertial sample.
type IMU struct {
	Time  float64
	Gyro  r3.Vector // rad/s, body frame
	Accel r3.Vector // m/s², body frame
}

// Scan is one LiDAR sweep. Period is the sweep duration in seconds.
type Scan struct {
	Time   float64
	Period float64
	Cloud  pointcloud.PointCloud
}

// Message is one of IMU, Scan, or gnss.Fix.
type Message interface {
	Stamp() float64
}

// Stamp implements Message.
func (m IMU) Stamp() float64 { return m.Time }

// Stamp implements Message.
func (m Scan) Stamp() float64 { return m.Time }

// FixMessage wraps a gnss.Fix as a Message.
type FixMessage struct {
	Fix gnss.Fix
}

// Stamp implements Message.
func (m FixMessage) Stamp() float64 { return m.Fix.Time }

// Source yields messages in time order and can be rewound, so the mapping
// frontend can make multiple passes over the same log.
type Source interface {
	Next() (Message, bool)
	Reset()
}

// SliceSource replays an in-memory message slice. The slice must already
// be in time order.
type SliceSource struct {
	msgs []Message
	pos  int
}

// NewSliceSource returns a Source over msgs.
func NewSliceSource(msgs []Message) *SliceSource {
	return &SliceSource{msgs: msgs}
}

// Next implements Source.
func (s *SliceSource) Next() (Message, bool) {
	if s.pos >= len(s.msgs) {
		return nil, false
	}
	m := s.msgs[s.pos]
	s.pos++
	return m, true
}

// Reset implements Source.
func (s *SliceSource) Reset() { s.pos = 0 }
