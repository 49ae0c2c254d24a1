package encoders

import (
	"bytes"
	"fmt"
	"image"
	"math"

	x264 "github.com/gen2brain/x264-go"

	"github.com/acentior/camera-preview/pkg/size"
)

// H264Encoder h264 encoder
type H264Encoder struct {
	buffer   *bytes.Buffer
	encoder  *x264.Encoder
	realSize size.Size
}

const h264SupportedProfile = "3.1"

func newH264Encoder(sz size.Size, frameRate int) (Encoder, error) {
	buffer := bytes.NewBuffer(make([]byte, 0))
	realSize, err := findBestSizeForH264Profile(h264SupportedProfile, sz)
	if err != nil {
		return nil, err
	}
	opts := x264.Options{
		Width:     realSize.Width,
		Height:    realSize.Height,
		FrameRate: frameRate,
		Tune:      "zerolatency",
		Preset:    "veryfast",
		Profile:   "baseline",
		LogLevel:  x264.LogWarning,
	}
	encoder, err := x264.NewEncoder(buffer, &opts)
	if err != nil {
		return nil, err
	}
	return &H264Encoder{
		buffer:   buffer,
		encoder:  encoder,
		realSize: realSize,
	}, nil
}

// Encode encodes a frame into a h264 payload
func (e *H264Encoder) Encode(frame *image.RGBA) ([]byte, error) {
	err := e.encoder.Encode(frame)
	if err != nil {
		return nil, err
	}
	err = e.encoder.Flush()
	if err != nil {
		return nil, err
	}
	payload := append([]byte(nil), e.buffer.Bytes()...)
	e.buffer.Reset()
	return payload, nil
}

// VideoSize returns the size the other side is expecting
func (e *H264Encoder) VideoSize() (size.Size, error) {
	return e.realSize, nil
}

// Close flushes and closes the inner x264 encoder
func (e *H264Encoder) Close() error {
	return e.encoder.Close()
}

var profileSizes = map[string][]size.Size{
	"3.1": {
		{Width: 1920, Height: 1920},
		{Width: 1920, Height: 1440},
		{Width: 1920, Height: 1080},
		{Width: 1280, Height: 720},
		{Width: 720, Height: 576},
		{Width: 720, Height: 480},
		{Width: 640, Height: 480},
		{Width: 320, Height: 240},
	},
}

// findBestSizeForH264Profile returns the largest profile size that fits in
// constraints with the closest aspect ratio. Constraints smaller than every
// profile size get the smallest one.
func findBestSizeForH264Profile(profile string, constraints size.Size) (size.Size, error) {
	sizes, exists := profileSizes[profile]
	if !exists {
		return size.Size{}, fmt.Errorf("profile %s not supported", profile)
	}
	if constraints.IsZero() {
		return size.Size{}, fmt.Errorf("invalid video size %s", constraints.String())
	}

	ratio := float64(constraints.Width) / float64(constraints.Height)
	minRatioDiff := math.MaxFloat64
	var best size.Size
	for _, s := range sizes {
		if s == constraints {
			return s, nil
		}
		lowerRes := s.Width <= constraints.Width && s.Height <= constraints.Height
		if !lowerRes {
			continue
		}
		ratioDiff := math.Abs(ratio - float64(s.Width)/float64(s.Height))
		if ratioDiff < 0.0001 {
			return s, nil
		}
		if ratioDiff < minRatioDiff {
			minRatioDiff = ratioDiff
			best = s
		}
	}
	if best.IsZero() {
		return sizes[len(sizes)-1], nil
	}
	return best, nil
}

func init() {
	registeredEncoders[H264Codec] = newH264Encoder
}
