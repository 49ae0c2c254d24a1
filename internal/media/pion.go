package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
)

// ErrNothingRequested mirrors the browser rejecting {audio: false, video: false}.
var ErrNothingRequested = errors.New("at least one of audio and video must be requested")

var (
	environmentLabels = []string{"back", "rear", "environment"}
	userLabels        = []string{"front", "user", "facetime"}
)

// PionDevices acquires streams through pion/mediadevices. Drivers are
// registered by importing them (driver/camera, driver/microphone, ...).
type PionDevices struct {
	// RearDeviceID and FrontDeviceID pin a facing direction to a device id
	// or to a substring of its label (e.g. "/dev/video2").
	RearDeviceID  string
	FrontDeviceID string

	enumerate    func() []mediadevices.MediaDeviceInfo
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

func NewPionDevices(rearDeviceID, frontDeviceID string) *PionDevices {
	return &PionDevices{
		RearDeviceID:  rearDeviceID,
		FrontDeviceID: frontDeviceID,
		enumerate:     mediadevices.EnumerateDevices,
		getUserMedia:  mediadevices.GetUserMedia,
	}
}

func (d *PionDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, ErrNothingRequested
	}

	constraints := mediadevices.MediaStreamConstraints{}
	if c.Video {
		deviceID := d.resolveFacing(c.FacingMode)
		constraints.Video = func(mtc *mediadevices.MediaTrackConstraints) {
			mtc.FrameFormat = prop.FrameFormatOneOf{frame.FormatI420, frame.FormatYUY2, frame.FormatMJPEG}
			if deviceID != "" {
				mtc.DeviceID = prop.String(deviceID)
			}
			if c.Size.Width > 0 {
				mtc.Width = prop.Int(c.Size.Width)
			}
			if c.Size.Height > 0 {
				mtc.Height = prop.Int(c.Size.Height)
			}
			if c.FrameRate > 0 {
				mtc.FrameRate = prop.Float(c.FrameRate)
			}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := d.getUserMedia(constraints)
		done <- result{stream: s, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return newPionStream(r.stream), nil
	case <-ctx.Done():
		// The driver may still hand us a stream; release it when it does.
		go func() {
			if r := <-done; r.err == nil {
				_ = StopTracks(newPionStream(r.stream))
			}
		}()
		return nil, ctx.Err()
	}
}

// resolveFacing picks a device id for the facing preference. Facing is a
// preference: with no match any camera may serve the request.
func (d *PionDevices) resolveFacing(mode FacingMode) string {
	var pinned string
	var keywords []string
	switch mode {
	case FacingEnvironment:
		pinned, keywords = d.RearDeviceID, environmentLabels
	case FacingUser:
		pinned, keywords = d.FrontDeviceID, userLabels
	default:
		return ""
	}

	var cameras []mediadevices.MediaDeviceInfo
	for _, info := range d.enumerate() {
		if info.Kind == mediadevices.VideoInput {
			cameras = append(cameras, info)
		}
	}

	if pinned != "" {
		for _, info := range cameras {
			if info.DeviceID == pinned || strings.Contains(info.Label, pinned) {
				return info.DeviceID
			}
		}
	}
	for _, info := range cameras {
		label := strings.ToLower(info.Label)
		for _, kw := range keywords {
			if strings.Contains(label, kw) {
				return info.DeviceID
			}
		}
	}
	return ""
}

type pionStream struct {
	id     string
	stream mediadevices.MediaStream
	tracks []Track
}

func newPionStream(stream mediadevices.MediaStream) *pionStream {
	s := &pionStream{id: uuid.New().String(), stream: stream}
	for _, t := range stream.GetVideoTracks() {
		s.tracks = append(s.tracks, &pionTrack{track: t, kind: KindVideo})
	}
	for _, t := range stream.GetAudioTracks() {
		s.tracks = append(s.tracks, &pionTrack{track: t, kind: KindAudio})
	}
	return s
}

func (s *pionStream) ID() string { return s.id }

func (s *pionStream) GetTracks() []Track { return s.tracks }

func (s *pionStream) NewVideoReader() (FrameReader, error) {
	videoTracks := s.stream.GetVideoTracks()
	if len(videoTracks) < 1 {
		return nil, ErrNoVideoTrack
	}
	vTrack, ok := videoTracks[0].(*mediadevices.VideoTrack)
	if !ok {
		return nil, fmt.Errorf("unexpected video track type %T", videoTracks[0])
	}
	return vTrack.NewReader(true), nil
}

type pionTrack struct {
	track mediadevices.Track
	kind  Kind

	once sync.Once
	err  error
}

func (t *pionTrack) ID() string { return t.track.ID() }

func (t *pionTrack) Kind() Kind { return t.kind }

func (t *pionTrack) Stop() error {
	t.once.Do(func() {
		t.err = t.track.Close()
	})
	return t.err
}
