package dom

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"

	"github.com/acentior/camera-preview/internal/canvas"
	"github.com/acentior/camera-preview/internal/media"
)

// MirrorStyle flips the rendered feed horizontally.
const MirrorStyle = "-webkit-transform: scaleX(-1); transform: scaleX(-1);"

var (
	ErrNoSource   = errors.New("video element has no source")
	ErrNotPlaying = errors.New("video element is not playing")
)

// VideoElement renders the frames of its source stream while playing and
// keeps the most recent one.
type VideoElement struct {
	id  string
	doc *Document

	// guarded by doc.mu
	parent *Container

	mu        sync.Mutex
	className string
	style     string
	src       media.Stream
	playing   bool
	stop      chan struct{}
	frame     *image.RGBA
	ready     chan struct{}
	readyDone bool
	err       error
	subs      map[int]chan *image.RGBA
	nextSub   int
}

func newVideoElement(d *Document, id string) *VideoElement {
	return &VideoElement{
		id:    id,
		doc:   d,
		ready: make(chan struct{}),
		subs:  make(map[int]chan *image.RGBA),
	}
}

func (v *VideoElement) ID() string { return v.id }

// Parent returns the container v is attached to, or nil.
func (v *VideoElement) Parent() *Container {
	v.doc.mu.RLock()
	defer v.doc.mu.RUnlock()
	return v.parent
}

func (v *VideoElement) SetClassName(name string) {
	v.mu.Lock()
	v.className = name
	v.mu.Unlock()
}

func (v *VideoElement) ClassName() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.className
}

func (v *VideoElement) SetStyle(style string) {
	v.mu.Lock()
	v.style = style
	v.mu.Unlock()
}

func (v *VideoElement) Style() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.style
}

// Mirrored reports whether the element is styled with a horizontal flip.
func (v *VideoElement) Mirrored() bool {
	return strings.Contains(v.Style(), "scaleX(-1)")
}

// SetSrcObject replaces the source stream. Playback of the previous source
// stops and the current frame is dropped.
func (v *VideoElement) SetSrcObject(s media.Stream) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pauseLocked()
	v.src = s
	v.frame = nil
	v.err = nil
	v.ready = make(chan struct{})
	v.readyDone = false
}

func (v *VideoElement) SrcObject() media.Stream {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.src
}

// Play starts pulling frames from the source. Playing twice is a no-op.
func (v *VideoElement) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.src == nil {
		return ErrNoSource
	}
	if v.playing {
		return nil
	}
	reader, err := v.src.NewVideoReader()
	if err != nil {
		return err
	}

	v.playing = true
	v.stop = make(chan struct{})
	go v.run(reader, v.stop, v.ready)
	return nil
}

// Pause stops pulling frames. The last frame stays available.
func (v *VideoElement) Pause() {
	v.mu.Lock()
	v.pauseLocked()
	v.mu.Unlock()
}

func (v *VideoElement) pauseLocked() {
	if v.playing {
		close(v.stop)
		v.playing = false
	}
}

func (v *VideoElement) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

func (v *VideoElement) run(reader media.FrameReader, stop, ready chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		img, release, err := reader.Read()
		if err != nil {
			select {
			case <-stop:
			default:
				v.fail(stop, ready, err)
			}
			return
		}
		frame := canvas.ToRGBA(img)
		release()

		select {
		case <-stop:
			return
		default:
		}
		v.publish(ready, frame)
	}
}

func (v *VideoElement) publish(ready chan struct{}, frame *image.RGBA) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ready != v.ready {
		return
	}
	v.markReadyLocked()
	v.frame = frame
	for _, ch := range v.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (v *VideoElement) fail(stop, ready chan struct{}, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ready != v.ready {
		return
	}
	v.markReadyLocked()
	v.err = err
	if v.stop == stop {
		v.playing = false
	}
}

func (v *VideoElement) markReadyLocked() {
	if !v.readyDone {
		close(v.ready)
		v.readyDone = true
	}
}

// VideoWidth is the width of the current frame, 0 before the first one.
func (v *VideoElement) VideoWidth() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frame == nil {
		return 0
	}
	return v.frame.Bounds().Dx()
}

// VideoHeight is the height of the current frame, 0 before the first one.
func (v *VideoElement) VideoHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frame == nil {
		return 0
	}
	return v.frame.Bounds().Dy()
}

// Frame returns the current frame, waiting for the first one while playing.
// The returned image must not be modified.
func (v *VideoElement) Frame(ctx context.Context) (*image.RGBA, error) {
	v.mu.Lock()
	if v.frame != nil {
		frame := v.frame
		v.mu.Unlock()
		return frame, nil
	}
	if !v.playing && v.err == nil {
		v.mu.Unlock()
		return nil, ErrNotPlaying
	}
	ready := v.ready
	v.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frame != nil {
		return v.frame, nil
	}
	if v.err != nil {
		return nil, v.err
	}
	return nil, ErrNotPlaying
}

// Subscribe returns a feed of new frames. Frames are dropped when the
// consumer lags. The channel is closed by cancel or when v is removed.
func (v *VideoElement) Subscribe() (<-chan *image.RGBA, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextSub
	v.nextSub++
	ch := make(chan *image.RGBA, 1)
	v.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if c, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(c)
			}
		})
	}
}

// Remove detaches v from its container, stops playback and closes all
// subscriptions. The source stream is left to the caller.
func (v *VideoElement) Remove() {
	d := v.doc
	d.mu.Lock()
	if v.parent != nil {
		v.parent.removeChildLocked(v)
		v.parent = nil
	}
	if d.videos[v.id] == v {
		delete(d.videos, v.id)
	}
	d.mu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	v.pauseLocked()
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}
