package media

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/videotest"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acentior/camera-preview/pkg/size"
)

func fakeEnumerate(infos ...mediadevices.MediaDeviceInfo) func() []mediadevices.MediaDeviceInfo {
	return func() []mediadevices.MediaDeviceInfo { return infos }
}

func TestResolveFacing(t *testing.T) {
	front := mediadevices.MediaDeviceInfo{DeviceID: "cam-front", Kind: mediadevices.VideoInput, Label: "FaceTime HD Camera"}
	back := mediadevices.MediaDeviceInfo{DeviceID: "cam-back", Kind: mediadevices.VideoInput, Label: "Back Camera"}
	usb := mediadevices.MediaDeviceInfo{DeviceID: "cam-usb", Kind: mediadevices.VideoInput, Label: "/dev/video2;/dev/video2"}
	mic := mediadevices.MediaDeviceInfo{DeviceID: "mic", Kind: mediadevices.AudioInput, Label: "rear microphone"}

	d := &PionDevices{enumerate: fakeEnumerate(mic, front, back, usb)}

	assert.Equal(t, "", d.resolveFacing(FacingAny))
	assert.Equal(t, "cam-back", d.resolveFacing(FacingEnvironment))
	assert.Equal(t, "cam-front", d.resolveFacing(FacingUser))

	d.RearDeviceID = "/dev/video2"
	assert.Equal(t, "cam-usb", d.resolveFacing(FacingEnvironment))

	d.FrontDeviceID = "cam-usb"
	assert.Equal(t, "cam-usb", d.resolveFacing(FacingUser))

	d = &PionDevices{enumerate: fakeEnumerate(usb)}
	assert.Equal(t, "", d.resolveFacing(FacingEnvironment), "no labelled camera falls back to any")
}

func TestGetUserMediaAppliesConstraints(t *testing.T) {
	var got mediadevices.MediaTrackConstraints
	var audioRequested bool

	d := &PionDevices{
		enumerate: fakeEnumerate(mediadevices.MediaDeviceInfo{DeviceID: "cam-back", Kind: mediadevices.VideoInput, Label: "rear"}),
		getUserMedia: func(c mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
			if c.Video != nil {
				c.Video(&got)
			}
			audioRequested = c.Audio != nil
			return mediadevices.NewMediaStream()
		},
	}

	stream, err := d.GetUserMedia(context.Background(), Constraints{
		Video:      true,
		FacingMode: FacingEnvironment,
		Size:       size.Size{Width: 640, Height: 480},
		FrameRate:  15,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stream.ID())
	assert.Empty(t, stream.GetTracks())
	assert.False(t, audioRequested)
	assert.Equal(t, prop.String("cam-back"), got.DeviceID)
	assert.Equal(t, prop.Int(640), got.Width)
	assert.Equal(t, prop.Int(480), got.Height)

	_, err = stream.NewVideoReader()
	assert.ErrorIs(t, err, ErrNoVideoTrack)
}

func TestGetUserMediaForwardsErrors(t *testing.T) {
	denied := errors.New("NotAllowedError: permission denied")
	d := &PionDevices{
		enumerate: fakeEnumerate(),
		getUserMedia: func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
			return nil, denied
		},
	}

	_, err := d.GetUserMedia(context.Background(), Constraints{Video: true, Audio: true})
	assert.Same(t, denied, err)

	_, err = d.GetUserMedia(context.Background(), Constraints{})
	assert.ErrorIs(t, err, ErrNothingRequested)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.GetUserMedia(ctx, Constraints{Video: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetUserMediaVideoTestDriver(t *testing.T) {
	d := NewPionDevices("", "")

	stream, err := d.GetUserMedia(context.Background(), Constraints{Video: true})
	require.NoError(t, err)
	defer func() { _ = StopTracks(stream) }()

	tracks := stream.GetTracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, KindVideo, tracks[0].Kind())

	reader, err := stream.NewVideoReader()
	require.NoError(t, err)
	img, release, err := reader.Read()
	require.NoError(t, err)
	defer release()
	assert.False(t, img.Bounds().Empty())
}
