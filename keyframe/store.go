package keyframe

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
)

// Store owns all keyframe records of one mapping run. Records are
// append-only; cloud payloads are persisted on creation and reloaded on
// demand with reference counting, so memory stays bounded by what callers
// currently hold.
type Store struct {
	dir    string
	logger golog.Logger

	mu     sync.Mutex
	frames []*Keyframe
	clouds map[int64]*cloudEntry
}

type cloudEntry struct {
	cloud pointcloud.PointCloud
	refs  int
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger golog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cannot create keyframe dir %q", dir)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		clouds: map[int64]*cloudEntry{},
	}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Len returns the number of keyframes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Get returns the keyframe with the given id.
func (s *Store) Get(id int64) (*Keyframe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= int64(len(s.frames)) {
		return nil, false
	}
	return s.frames[id], true
}

// Each calls fn for every keyframe in id order.
func (s *Store) Each(fn func(*Keyframe) bool) {
	s.mu.Lock()
	frames := make([]*Keyframe, len(s.frames))
	copy(frames, s.frames)
	s.mu.Unlock()
	for _, kf := range frames {
		if !fn(kf) {
			return
		}
	}
}

// Append assigns the next sequential id to kf, persists its cloud and
// immediately releases it from memory.
func (s *Store) Append(kf *Keyframe, cloud pointcloud.PointCloud) error {
	s.mu.Lock()
	kf.ID = int64(len(s.frames))
	s.frames = append(s.frames, kf)
	s.mu.Unlock()

	if err := pointcloud.WriteToFile(cloud, s.cloudPath(kf.ID), pointcloud.PCDCompressed); err != nil {
		return errors.Wrapf(err, "persisting cloud of keyframe %d", kf.ID)
	}
	s.logger.Debugw("keyframe persisted", "id", kf.ID, "points", cloud.Size())
	return nil
}

// LoadCloud returns the keyframe's cloud, reading it from disk on first
// use. Every LoadCloud must be paired with a ReleaseCloud.
func (s *Store) LoadCloud(id int64) (pointcloud.PointCloud, error) {
	s.mu.Lock()
	if e, ok := s.clouds[id]; ok {
		e.refs++
		s.mu.Unlock()
		return e.cloud, nil
	}
	s.mu.Unlock()

	cloud, err := pointcloud.NewFromFile(s.cloudPath(id))
	if err != nil {
		return nil, errors.Wrapf(err, "loading cloud of keyframe %d", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.clouds[id]; ok {
		// lost the race, use the winner's copy
		e.refs++
		return e.cloud, nil
	}
	s.clouds[id] = &cloudEntry{cloud: cloud, refs: 1}
	return cloud, nil
}

// ReleaseCloud drops one reference to the keyframe's cloud, evicting it
// from memory when nothing holds it anymore. The file on disk stays.
func (s *Store) ReleaseCloud(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.clouds[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.clouds, id)
	}
}

func (s *Store) cloudPath(id int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.pcd", id))
}
