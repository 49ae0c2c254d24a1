// Package media is the acquisition side of the preview: it asks the host
// media stack for streams the way a page asks navigator.mediaDevices.
package media

import (
	"context"
	"errors"
	"image"

	"github.com/acentior/camera-preview/pkg/size"
)

// FacingMode is the camera direction preference of a video request.
type FacingMode string

const (
	FacingAny         FacingMode = ""
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ErrNoVideoTrack is returned when a stream without video is asked for frames.
var ErrNoVideoTrack = errors.New("stream has no video track")

// Constraints describes a GetUserMedia request.
type Constraints struct {
	Audio      bool
	Video      bool
	FacingMode FacingMode
	Size       size.Size
	FrameRate  float64
}

// Track is a single live source inside a stream.
type Track interface {
	ID() string
	Kind() Kind
	Stop() error
}

// FrameReader yields decoded frames; release must be called once the frame
// is no longer used.
type FrameReader interface {
	Read() (img image.Image, release func(), err error)
}

// Stream is an acquired set of tracks.
type Stream interface {
	ID() string
	GetTracks() []Track
	NewVideoReader() (FrameReader, error)
}

// Devices acquires streams from the host.
type Devices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// StopTracks stops every track of s and returns the first error.
func StopTracks(s Stream) error {
	var first error
	for _, track := range s.GetTracks() {
		if err := track.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
