// Package mediatest provides scripted media devices for tests.
package mediatest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acentior/camera-preview/internal/media"
	"github.com/acentior/camera-preview/pkg/size"
)

// Colors of the left and right halves of every generated frame.
var (
	Left  = color.RGBA{R: 255, A: 255}
	Right = color.RGBA{B: 255, A: 255}
)

// Pattern returns a frame whose left half is Left and right half is Right.
func Pattern(sz size.Size) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, sz.Width, sz.Height))
	for y := 0; y < sz.Height; y++ {
		for x := 0; x < sz.Width; x++ {
			if x < sz.Width/2 {
				img.SetRGBA(x, y, Left)
			} else {
				img.SetRGBA(x, y, Right)
			}
		}
	}
	return img
}

// Devices hands out pattern streams and records every request.
type Devices struct {
	mu       sync.Mutex
	size     size.Size
	interval time.Duration
	calls    []media.Constraints
	failures []error
	streams  []*Stream
	seq      int
}

func NewDevices(width, height int) *Devices {
	return &Devices{
		size:     size.Size{Width: width, Height: height},
		interval: 5 * time.Millisecond,
	}
}

// FailNext makes the next GetUserMedia call return err.
func (d *Devices) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

// Calls returns the constraints of every request so far.
func (d *Devices) Calls() []media.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.Constraints(nil), d.calls...)
}

// Streams returns every stream handed out so far.
func (d *Devices) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

func (d *Devices) GetUserMedia(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, c)
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}

	d.seq++
	s := &Stream{
		id:       fmt.Sprintf("stream-%d", d.seq),
		frame:    Pattern(c.Size.Or(d.size)),
		interval: d.interval,
	}
	if c.Video {
		s.tracks = append(s.tracks, &Track{id: s.id + "-video", kind: media.KindVideo})
	}
	if c.Audio {
		s.tracks = append(s.tracks, &Track{id: s.id + "-audio", kind: media.KindAudio})
	}
	d.streams = append(d.streams, s)
	return s, nil
}

type Stream struct {
	id       string
	tracks   []*Track
	frame    *image.RGBA
	interval time.Duration
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) GetTracks() []media.Track {
	out := make([]media.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

// Stopped reports whether every track of the stream was stopped.
func (s *Stream) Stopped() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

func (s *Stream) NewVideoReader() (media.FrameReader, error) {
	for _, t := range s.tracks {
		if t.kind == media.KindVideo {
			return &reader{track: t, frame: s.frame, interval: s.interval}, nil
		}
	}
	return nil, media.ErrNoVideoTrack
}

type Track struct {
	id      string
	kind    media.Kind
	stopped atomic.Bool
}

func (t *Track) ID() string { return t.id }

func (t *Track) Kind() media.Kind { return t.kind }

func (t *Track) Stop() error {
	t.stopped.Store(true)
	return nil
}

func (t *Track) Stopped() bool { return t.stopped.Load() }

type reader struct {
	track    *Track
	frame    *image.RGBA
	interval time.Duration
}

func (r *reader) Read() (image.Image, func(), error) {
	time.Sleep(r.interval)
	if r.track.Stopped() {
		return nil, func() {}, io.EOF
	}
	return r.frame, func() {}, nil
}
