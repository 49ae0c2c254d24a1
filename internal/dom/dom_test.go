package dom

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acentior/camera-preview/internal/media"
	"github.com/acentior/camera-preview/internal/media/mediatest"
)

func newStream(t *testing.T, width, height int) media.Stream {
	t.Helper()
	s, err := mediatest.NewDevices(width, height).GetUserMedia(context.Background(), media.Constraints{Video: true})
	require.NoError(t, err)
	return s
}

func TestContainers(t *testing.T) {
	doc := NewDocument()
	a := doc.AddContainer("b")
	doc.AddContainer("a")

	assert.Same(t, a, doc.AddContainer("b"))
	assert.Equal(t, []string{"a", "b"}, doc.Containers())

	c, ok := doc.Container("a")
	require.True(t, ok)
	assert.Equal(t, "a", c.ID())

	_, ok = doc.Container("missing")
	assert.False(t, ok)
}

func TestAttachAndRemove(t *testing.T) {
	doc := NewDocument()
	parent := doc.AddContainer("camera")

	v := doc.CreateVideo("video")
	_, found := doc.Video("video")
	assert.False(t, found, "detached elements are not in the document")

	require.NoError(t, parent.AppendChild(v))
	got, found := doc.Video("video")
	require.True(t, found)
	assert.Same(t, v, got)
	assert.Same(t, parent, v.Parent())
	assert.Equal(t, []*VideoElement{v}, parent.Children())

	assert.ErrorIs(t, parent.AppendChild(doc.CreateVideo("video")), ErrDuplicateID)

	v.Remove()
	_, found = doc.Video("video")
	assert.False(t, found)
	assert.Nil(t, v.Parent())
	assert.Empty(t, parent.Children())

	// Removing twice is harmless.
	v.Remove()
}

func TestAppendChildMovesElement(t *testing.T) {
	doc := NewDocument()
	first := doc.AddContainer("first")
	second := doc.AddContainer("second")
	v := doc.CreateVideo("video")

	require.NoError(t, first.AppendChild(v))
	require.NoError(t, second.AppendChild(v))

	assert.Empty(t, first.Children())
	assert.Equal(t, []*VideoElement{v}, second.Children())
}

func TestMirrored(t *testing.T) {
	v := NewDocument().CreateVideo("video")
	assert.False(t, v.Mirrored())

	v.SetStyle(MirrorStyle)
	assert.True(t, v.Mirrored())

	v.SetClassName("preview")
	assert.Equal(t, "preview", v.ClassName())
}

func TestPlayback(t *testing.T) {
	v := NewDocument().CreateVideo("video")

	assert.ErrorIs(t, v.Play(), ErrNoSource)
	_, err := v.Frame(context.Background())
	assert.ErrorIs(t, err, ErrNotPlaying)

	stream := newStream(t, 8, 4)
	v.SetSrcObject(stream)
	assert.Same(t, stream, v.SrcObject())
	assert.Equal(t, 0, v.VideoWidth())

	require.NoError(t, v.Play())
	require.NoError(t, v.Play())
	assert.True(t, v.Playing())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := v.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, frame.Bounds().Dx())
	assert.Equal(t, 8, v.VideoWidth())
	assert.Equal(t, 4, v.VideoHeight())
	assert.Equal(t, mediatest.Left, frame.RGBAAt(0, 0))
	assert.Equal(t, mediatest.Right, frame.RGBAAt(7, 0))

	v.Pause()
	assert.False(t, v.Playing())
	_, err = v.Frame(ctx)
	assert.NoError(t, err, "last frame survives pause")
}

func TestFrameReportsSourceError(t *testing.T) {
	v := NewDocument().CreateVideo("video")
	stream := newStream(t, 4, 4)
	require.NoError(t, media.StopTracks(stream))

	v.SetSrcObject(stream)
	require.NoError(t, v.Play())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := v.Frame(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, v.Playing())
}

func TestFrameHonoursContext(t *testing.T) {
	v := NewDocument().CreateVideo("video")
	v.SetSrcObject(newStream(t, 4, 4))
	require.NoError(t, v.Play())
	defer v.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Frame(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestSubscribe(t *testing.T) {
	doc := NewDocument()
	v := doc.CreateVideo("video")
	require.NoError(t, doc.AddContainer("camera").AppendChild(v))

	frames, cancel := v.Subscribe()
	defer cancel()

	v.SetSrcObject(newStream(t, 6, 2))
	require.NoError(t, v.Play())

	select {
	case frame := <-frames:
		require.NotNil(t, frame)
		assert.Equal(t, 6, frame.Bounds().Dx())
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}

	v.Remove()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-frames:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeCancel(t *testing.T) {
	v := NewDocument().CreateVideo("video")
	frames, cancel := v.Subscribe()
	cancel()
	cancel()

	_, ok := <-frames
	assert.False(t, ok)
}
