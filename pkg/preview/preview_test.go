package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/acentior/camera-preview/internal/dom"
	"github.com/acentior/camera-preview/internal/media"
	"github.com/acentior/camera-preview/internal/media/mediatest"
	"github.com/acentior/camera-preview/pkg/size"
)

type PreviewSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	doc     *dom.Document
	devices *mediatest.Devices
	preview *CameraPreview
}

// run before each test
func (s *PreviewSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	s.doc = dom.NewDocument()
	s.doc.AddContainer("camera")
	s.devices = mediatest.NewDevices(8, 4)
	s.preview = New(s.doc, s.devices, Config{})
}

// run after each test
func (s *PreviewSuite) TearDownTest() {
	s.NoError(s.preview.Stop(s.ctx))
	s.cancel()
}

func TestPreviewSuite(t *testing.T) {
	suite.Run(t, new(PreviewSuite))
}

func (s *PreviewSuite) decodePNG(value string) image.Image {
	raw, err := base64.StdEncoding.DecodeString(value)
	s.Require().NoError(err)
	img, err := png.Decode(bytes.NewReader(raw))
	s.Require().NoError(err)
	return img
}

func rgba(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func (s *PreviewSuite) Test_StartAttachesVideoElement() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera", ClassName: "cameraPreview"}))

	video, found := s.doc.Video(VideoElementID)
	s.Require().True(found)
	s.Equal("camera", video.Parent().ID())
	s.Equal("cameraPreview", video.ClassName())
	s.Equal(dom.MirrorStyle, video.Style())
	s.True(video.Playing())
	s.True(s.preview.Active())
}

func (s *PreviewSuite) Test_StartRearIsNotMirrored() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera", Position: PositionRear}))

	video, found := s.doc.Video(VideoElementID)
	s.Require().True(found)
	s.Empty(video.Style())
	s.False(video.Mirrored())
}

func (s *PreviewSuite) Test_StartTwiceConflicts() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))

	err := s.preview.Start(s.ctx, Options{Parent: "camera"})
	s.ErrorIs(err, ErrAlreadyStarted)
	s.EqualError(err, "camera already started")
	s.Len(s.devices.Calls(), 2, "the second start acquires nothing")
}

func (s *PreviewSuite) Test_StopWithoutPreviewIsNoop() {
	s.NoError(s.preview.Stop(s.ctx))
	s.NoError(s.preview.Stop(s.ctx))
	s.Empty(s.devices.Calls())
}

func (s *PreviewSuite) Test_StopReleasesStream() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))
	streams := s.devices.Streams()
	s.Require().Len(streams, 2)

	s.Require().NoError(s.preview.Stop(s.ctx))

	s.True(streams[1].Stopped())
	_, found := s.doc.Video(VideoElementID)
	s.False(found)
	s.False(s.preview.Active())

	container, _ := s.doc.Container("camera")
	s.Empty(container.Children())

	s.NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}), "restart after stop")
}

func (s *PreviewSuite) Test_ProbeRequestsAudioUnlessDisabled() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))
	s.Require().NoError(s.preview.Stop(s.ctx))
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera", DisableAudio: true}))

	calls := s.devices.Calls()
	s.Require().Len(calls, 4)
	s.Equal(media.Constraints{Audio: true, Video: true}, calls[0])
	s.False(calls[1].Audio, "the preview itself never carries audio")
	s.Equal(media.Constraints{Audio: false, Video: true}, calls[2])

	streams := s.devices.Streams()
	s.True(streams[0].Stopped(), "probe stream released")
	s.True(streams[2].Stopped(), "probe stream released")
	s.False(streams[3].Stopped())
}

func (s *PreviewSuite) Test_FacingModeFollowsPosition() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera", Position: PositionRear, Width: 320, Height: 240}))
	s.Require().NoError(s.preview.Stop(s.ctx))
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera", Position: "front"}))

	calls := s.devices.Calls()
	s.Require().Len(calls, 4)
	s.Equal(media.FacingEnvironment, calls[1].FacingMode)
	s.Equal(size.Size{Width: 320, Height: 240}, calls[1].Size)
	s.Equal(media.FacingAny, calls[3].FacingMode)
}

func (s *PreviewSuite) Test_StartUnknownParent() {
	err := s.preview.Start(s.ctx, Options{Parent: "nowhere"})
	s.ErrorIs(err, ErrParentNotFound)
	s.False(s.preview.Active())
	s.True(s.devices.Streams()[0].Stopped())
}

func (s *PreviewSuite) Test_StartForwardsProbeError() {
	denied := errors.New("NotAllowedError: Permission denied")
	s.devices.FailNext(denied)

	err := s.preview.Start(s.ctx, Options{Parent: "camera"})
	s.Same(denied, err)
	s.False(s.preview.Active())
}

func (s *PreviewSuite) Test_StartAcquisitionFailureLeavesNoElement() {
	unsatisfiable := errors.New("OverconstrainedError")
	s.preview = New(s.doc, &failSecond{Devices: s.devices, err: unsatisfiable}, Config{})

	err := s.preview.Start(s.ctx, Options{Parent: "camera"})
	s.Same(unsatisfiable, err)
	s.False(s.preview.Active())

	s.preview = New(s.doc, s.devices, Config{})
	s.NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}), "a failed start does not lock out the next one")
}

func (s *PreviewSuite) Test_UnsupportedOperations() {
	_, err := s.preview.GetSupportedFlashModes(s.ctx)
	s.ErrorIs(err, ErrUnsupported)
	s.EqualError(err, "getSupportedFlashModes not supported under the web platform")

	err = s.preview.SetFlashMode(s.ctx, FlashTorch)
	s.ErrorIs(err, ErrUnsupported)
	s.EqualError(err, "setFlashMode not supported under the web platform")

	err = s.preview.Flip(s.ctx)
	s.ErrorIs(err, ErrUnsupported)
	var unsupported *UnsupportedError
	s.Require().ErrorAs(err, &unsupported)
	s.Equal("flip", unsupported.Op)

	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))
	s.ErrorIs(s.preview.Flip(s.ctx), ErrUnsupported, "unsupported while a preview runs too")
}

func (s *PreviewSuite) Test_CaptureWithoutPreview() {
	_, err := s.preview.Capture(s.ctx, PictureOptions{})
	s.ErrorIs(err, ErrNotStarted)
}

func (s *PreviewSuite) Test_CaptureMirroredForFrontCamera() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))

	result, err := s.preview.Capture(s.ctx, PictureOptions{})
	s.Require().NoError(err)

	img := s.decodePNG(result.Value)
	s.Equal(image.Rect(0, 0, 8, 4), img.Bounds())
	s.Equal(mediatest.Right, rgba(img.At(0, 0)))
	s.Equal(mediatest.Left, rgba(img.At(7, 3)))
}

func (s *PreviewSuite) Test_CaptureNotMirroredForRearCamera() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera", Position: PositionRear}))

	result, err := s.preview.Capture(s.ctx, PictureOptions{})
	s.Require().NoError(err)

	img := s.decodePNG(result.Value)
	s.Equal(mediatest.Left, rgba(img.At(0, 0)))
	s.Equal(mediatest.Right, rgba(img.At(7, 3)))
}

func (s *PreviewSuite) Test_CaptureResizedJPEG() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera", Width: 32, Height: 16}))

	result, err := s.preview.Capture(s.ctx, PictureOptions{Width: 16, Quality: 90})
	s.Require().NoError(err)

	raw, err := base64.StdEncoding.DecodeString(result.Value)
	s.Require().NoError(err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	s.Require().NoError(err)
	s.Equal(16, cfg.Width)
	s.Equal(8, cfg.Height)
}

func (s *PreviewSuite) Test_CaptureRejectsOversizedPicture() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))

	for _, options := range []PictureOptions{
		{Width: 1 << 31, Height: 1 << 31},
		{Width: MaxPictureSide + 1},
		{Height: -1},
		{Quality: 101},
		// 8x4 frames: the kept ratio makes this 16384 wide.
		{Height: MaxPictureSide},
	} {
		_, err := s.preview.Capture(s.ctx, options)
		s.ErrorIs(err, ErrInvalidArgument, "%+v", options)
	}

	result, err := s.preview.Capture(s.ctx, PictureOptions{Width: 16})
	s.Require().NoError(err)
	s.Equal(image.Rect(0, 0, 16, 8), s.decodePNG(result.Value).Bounds())
}

func (s *PreviewSuite) Test_CaptureSample() {
	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))

	png, err := s.preview.CaptureSample(s.ctx, SampleOptions{})
	s.Require().NoError(err)
	s.decodePNG(png.Value)

	jpg, err := s.preview.CaptureSample(s.ctx, SampleOptions{Quality: 50})
	s.Require().NoError(err)
	raw, err := base64.StdEncoding.DecodeString(jpg.Value)
	s.Require().NoError(err)
	_, err = jpeg.DecodeConfig(bytes.NewReader(raw))
	s.NoError(err)
}

func (s *PreviewSuite) Test_Subscribe() {
	_, err := s.preview.Subscribe()
	s.ErrorIs(err, ErrNotStarted)

	s.Require().NoError(s.preview.Start(s.ctx, Options{Parent: "camera"}))
	feed, err := s.preview.Subscribe()
	s.Require().NoError(err)
	defer feed.Cancel()

	s.True(feed.Mirrored)
	s.False(feed.Size.IsZero())
	s.Positive(feed.FrameRate)

	select {
	case frame := <-feed.Frames:
		s.Equal(8, frame.Bounds().Dx())
	case <-s.ctx.Done():
		s.Fail("no frame")
	}
}

// failSecond lets the probe through and fails the preview request.
type failSecond struct {
	*mediatest.Devices
	err   error
	calls int
}

func (f *failSecond) GetUserMedia(ctx context.Context, c media.Constraints) (media.Stream, error) {
	f.calls++
	if f.calls == 2 {
		return nil, f.err
	}
	return f.Devices.GetUserMedia(ctx, c)
}
