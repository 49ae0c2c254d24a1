package livestream

import (
	"image"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/acentior/camera-preview/internal/canvas"
	"github.com/acentior/camera-preview/internal/encoders"
	"github.com/acentior/camera-preview/pkg/preview"
	"github.com/acentior/camera-preview/pkg/size"
)

// rtcStreamer encodes the frames of a preview feed onto a WebRTC track.
type rtcStreamer struct {
	track   *webrtc.TrackLocalStaticSample
	feed    preview.Feed
	encoder encoders.Encoder
	size    size.Size
	log     logging.LeveledLogger
	// onExit runs when streaming ends on its own, not through Close.
	onExit func()

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func newRTCStreamer(track *webrtc.TrackLocalStaticSample, feed preview.Feed, encoder encoders.Encoder, size size.Size, log logging.LeveledLogger, onExit func()) *rtcStreamer {
	return &rtcStreamer{
		track:   track,
		feed:    feed,
		encoder: encoder,
		size:    size,
		log:     log,
		onExit:  onExit,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *rtcStreamer) start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *rtcStreamer) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case frame, ok := <-s.feed.Frames:
			if !ok {
				s.log.Info("preview feed closed")
				s.exit()
				return
			}
			if err := s.stream(frame); err != nil {
				s.log.Errorf("streamer: %v", err)
				s.exit()
				return
			}
		}
	}
}

func (s *rtcStreamer) exit() {
	if s.onExit != nil {
		s.onExit()
	}
}

func (s *rtcStreamer) stream(frame *image.RGBA) error {
	payload, err := s.encoder.Encode(s.prepare(frame))
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	delta := time.Duration(float64(time.Second) / s.feed.FrameRate)
	return s.track.WriteSample(media.Sample{
		Data:      payload,
		Timestamp: time.Now(),
		Duration:  delta,
	})
}

// prepare shows the frame the way the preview element does and fits it to
// the encoder size.
func (s *rtcStreamer) prepare(frame *image.RGBA) *image.RGBA {
	b := frame.Bounds()
	if !s.feed.Mirrored && b.Dx() == s.size.Width && b.Dy() == s.size.Height {
		return frame
	}
	c := canvas.New(b.Dx(), b.Dy())
	c.DrawImage(frame, s.feed.Mirrored)
	c.Resize(s.size)
	return c.Image()
}

func (s *rtcStreamer) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.feed.Cancel()
		// Never started: mark done and keep start from running later.
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
		if err := s.encoder.Close(); err != nil {
			s.log.Warnf("closing encoder: %v", err)
		}
	})
}
