// Package preview starts and stops a live camera preview inside a host
// container and captures still frames from it.
package preview

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/pion/logging"

	"github.com/acentior/camera-preview/internal/canvas"
	"github.com/acentior/camera-preview/internal/dom"
	"github.com/acentior/camera-preview/internal/logs"
	"github.com/acentior/camera-preview/internal/media"
	"github.com/acentior/camera-preview/pkg/size"
)

// VideoElementID is the id of the preview element. There is one per
// document, so one preview per process.
const VideoElementID = "video"

var fallbackSize = size.Size{Width: 640, Height: 480}

// Config holds the defaults applied to every preview.
type Config struct {
	// Size is requested when Start leaves width or height unset.
	Size      size.Size
	FrameRate float64

	LoggerFactory logging.LoggerFactory
}

// CameraPreview drives the preview element of a document.
type CameraPreview struct {
	doc     *dom.Document
	devices media.Devices
	cfg     Config
	log     logging.LeveledLogger

	mu sync.Mutex
	// isBackCamera records whether the latest Start asked for the rear
	// camera; captures of any other camera are mirrored like the preview.
	isBackCamera bool
}

func New(doc *dom.Document, devices media.Devices, cfg Config) *CameraPreview {
	return &CameraPreview{
		doc:     doc,
		devices: devices,
		cfg:     cfg,
		log:     logs.New(cfg.LoggerFactory, "preview"),
	}
}

// Start acquires the camera and attaches a playing video element to the
// container named by options.Parent. Host errors are returned unchanged.
func (p *CameraPreview) Start(ctx context.Context, options Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, found := p.doc.Video(VideoElementID); found {
		return ErrAlreadyStarted
	}

	// Permission probe, released at once so the preview request below may
	// use different constraints.
	probe, err := p.devices.GetUserMedia(ctx, media.Constraints{
		Audio: !options.DisableAudio,
		Video: true,
	})
	if err != nil {
		return err
	}
	if err := media.StopTracks(probe); err != nil {
		p.log.Warnf("releasing probe stream %s: %v", probe.ID(), err)
	}

	parent, found := p.doc.Container(options.Parent)
	if !found {
		return fmt.Errorf("%w: %q", ErrParentNotFound, options.Parent)
	}

	video := p.doc.CreateVideo(VideoElementID)
	video.SetClassName(options.ClassName)

	rear := options.Position == PositionRear
	// The feed of a user-facing camera is shown like a mirror.
	if !rear {
		video.SetStyle(dom.MirrorStyle)
	}
	if err := parent.AppendChild(video); err != nil {
		return err
	}

	constraints := media.Constraints{
		Video:     true,
		Size:      size.Size{Width: options.Width, Height: options.Height}.Or(p.cfg.Size),
		FrameRate: p.cfg.FrameRate,
	}
	if rear {
		constraints.FacingMode = media.FacingEnvironment
	}
	p.isBackCamera = rear

	stream, err := p.devices.GetUserMedia(ctx, constraints)
	if err != nil {
		video.Remove()
		return err
	}

	video.SetSrcObject(stream)
	if err := video.Play(); err != nil {
		video.Remove()
		if stopErr := media.StopTracks(stream); stopErr != nil {
			p.log.Warnf("releasing stream %s: %v", stream.ID(), stopErr)
		}
		return err
	}

	p.log.Infof("preview started in %q (stream %s, rear=%t)", options.Parent, stream.ID(), rear)
	return nil
}

// Stop pauses the preview, stops every track of its stream and removes the
// element. Without an active preview it does nothing.
func (p *CameraPreview) Stop(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	video, found := p.doc.Video(VideoElementID)
	if !found {
		return nil
	}

	video.Pause()
	var err error
	if stream := video.SrcObject(); stream != nil {
		err = media.StopTracks(stream)
	}
	video.Remove()

	p.log.Info("preview stopped")
	return err
}

// Active reports whether a preview element is attached.
func (p *CameraPreview) Active() bool {
	_, found := p.doc.Video(VideoElementID)
	return found
}

// Capture draws the current preview frame and returns it base64 encoded.
// The frame is mirrored unless the preview uses the rear camera.
func (p *CameraPreview) Capture(ctx context.Context, options PictureOptions) (CaptureResult, error) {
	if err := options.validate(); err != nil {
		return CaptureResult{}, err
	}

	p.mu.Lock()
	video, found := p.doc.Video(VideoElementID)
	mirror := !p.isBackCamera
	p.mu.Unlock()

	if !found {
		return CaptureResult{}, ErrNotStarted
	}

	frame, err := video.Frame(ctx)
	if err != nil {
		return CaptureResult{}, err
	}

	if err := checkScaledSize(options, frame.Bounds()); err != nil {
		return CaptureResult{}, err
	}

	c := canvas.New(frame.Bounds().Dx(), frame.Bounds().Dy())
	c.DrawImage(frame, mirror)
	c.Resize(size.Size{Width: options.Width, Height: options.Height})

	format := canvas.PNG
	if options.Quality > 0 {
		format = canvas.JPEG
	}
	url, err := c.ToDataURL(format, options.Quality)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{Value: canvas.StripDataURL(url)}, nil
}

// checkScaledSize rejects a single requested side that scales the other,
// ratio-kept side past MaxPictureSide.
func checkScaledSize(options PictureOptions, frame image.Rectangle) error {
	w, h := options.Width, options.Height
	if w == 0 && h == 0 || frame.Empty() {
		return nil
	}
	if w == 0 {
		w = h * frame.Dx() / frame.Dy()
	}
	if h == 0 {
		h = w * frame.Dy() / frame.Dx()
	}
	if w > MaxPictureSide || h > MaxPictureSide {
		return fmt.Errorf("%w: picture size %dx%d exceeds %d", ErrInvalidArgument, w, h, MaxPictureSide)
	}
	return nil
}

// CaptureSample captures like Capture at the sample's quality.
func (p *CameraPreview) CaptureSample(ctx context.Context, options SampleOptions) (CaptureResult, error) {
	return p.Capture(ctx, PictureOptions{Quality: options.Quality})
}

func (p *CameraPreview) GetSupportedFlashModes(_ context.Context) ([]FlashMode, error) {
	return nil, &UnsupportedError{Op: "getSupportedFlashModes"}
}

func (p *CameraPreview) SetFlashMode(_ context.Context, _ FlashMode) error {
	return &UnsupportedError{Op: "setFlashMode"}
}

func (p *CameraPreview) Flip(_ context.Context) error {
	return &UnsupportedError{Op: "flip"}
}

// Feed is a live view of the attached preview.
type Feed struct {
	Frames <-chan *image.RGBA
	Cancel func()
	// Mirrored is set when the element is displayed flipped.
	Mirrored  bool
	Size      size.Size
	FrameRate float64
}

// Subscribe returns a frame feed of the attached preview.
func (p *CameraPreview) Subscribe() (Feed, error) {
	video, found := p.doc.Video(VideoElementID)
	if !found {
		return Feed{}, ErrNotStarted
	}

	frames, cancel := video.Subscribe()
	sz := size.Size{Width: video.VideoWidth(), Height: video.VideoHeight()}
	if sz.IsZero() {
		sz = p.cfg.Size.Or(fallbackSize)
	}
	fps := p.cfg.FrameRate
	if fps <= 0 {
		fps = 30
	}
	return Feed{
		Frames:    frames,
		Cancel:    cancel,
		Mirrored:  video.Mirrored(),
		Size:      sz,
		FrameRate: fps,
	}, nil
}
