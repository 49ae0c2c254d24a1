package encoders

import (
	"fmt"
	"image"
	"io"

	"github.com/acentior/camera-preview/pkg/size"
)

// Service creates encoder instances
type Service interface {
	NewEncoder(codec VideoCodec, size size.Size, frameRate int) (Encoder, error)
	Supports(codec VideoCodec) bool
}

// Encoder takes an image/frame and encodes it
type Encoder interface {
	io.Closer
	Encode(*image.RGBA) ([]byte, error)
	VideoSize() (size.Size, error)
}

// VideoCodec can be either h264 or vp8
type VideoCodec int

const (
	// NoCodec "zero-value"
	NoCodec VideoCodec = iota
	// H264Codec h264
	H264Codec
	// VP8Codec vp8
	VP8Codec
)

func (c VideoCodec) String() string {
	switch c {
	case H264Codec:
		return "H264"
	case VP8Codec:
		return "VP8"
	}
	return "none"
}

type encoderFactory func(size size.Size, frameRate int) (Encoder, error)

var registeredEncoders = make(map[VideoCodec]encoderFactory)

// EncoderService builds encoders for every codec registered at init time.
type EncoderService struct{}

func NewEncoderService() *EncoderService {
	return &EncoderService{}
}

func (s *EncoderService) NewEncoder(codec VideoCodec, size size.Size, frameRate int) (Encoder, error) {
	factory, ok := registeredEncoders[codec]
	if !ok {
		return nil, fmt.Errorf("codec %s not supported", codec)
	}
	return factory(size, frameRate)
}

func (s *EncoderService) Supports(codec VideoCodec) bool {
	_, ok := registeredEncoders[codec]
	return ok
}
