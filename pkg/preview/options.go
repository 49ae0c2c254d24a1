package preview

import "fmt"

// PositionRear selects the environment-facing camera. Any other position
// selects the user-facing one.
const PositionRear = "rear"

// Options configures Start.
type Options struct {
	// Parent is the id of the container the video element is appended to.
	Parent    string `json:"parent"`
	ClassName string `json:"className,omitempty"`
	Position  string `json:"position,omitempty"`

	DisableAudio bool `json:"disableAudio,omitempty"`

	// Requested video size; zero leaves the choice to the device.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// MaxPictureSide bounds the width and height a capture may be resized to.
const MaxPictureSide = 8192

// PictureOptions configures Capture.
type PictureOptions struct {
	// Output size; zero keeps the frame size, a single zero keeps the ratio.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// Quality 0 yields PNG, 1..100 a JPEG of that quality.
	Quality int `json:"quality,omitempty"`
}

func (o PictureOptions) validate() error {
	if o.Width < 0 || o.Width > MaxPictureSide || o.Height < 0 || o.Height > MaxPictureSide {
		return fmt.Errorf("%w: picture size %dx%d outside 0..%d", ErrInvalidArgument, o.Width, o.Height, MaxPictureSide)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("%w: quality %d outside 0..100", ErrInvalidArgument, o.Quality)
	}
	return nil
}

// SampleOptions configures CaptureSample.
type SampleOptions struct {
	Quality int `json:"quality,omitempty"`
}

// CaptureResult carries the base64 image payload without a data-URL prefix.
type CaptureResult struct {
	Value string `json:"value"`
}

type FlashMode string

const (
	FlashOff    FlashMode = "off"
	FlashOn     FlashMode = "on"
	FlashAuto   FlashMode = "auto"
	FlashRedEye FlashMode = "red-eye"
	FlashTorch  FlashMode = "torch"
)
