// Package livestream lets a remote peer watch the running preview over
// WebRTC. The preview frames are H264 encoded onto a single video track.
package livestream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v3"

	"github.com/acentior/camera-preview/internal/encoders"
	"github.com/acentior/camera-preview/internal/logs"
	"github.com/acentior/camera-preview/pkg/preview"
	"github.com/acentior/camera-preview/pkg/size"
)

// ErrNoVideoRequested is returned for offers without a receiving video section.
var ErrNoVideoRequested = errors.New("offer does not receive video")

var h264Capability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeH264,
	ClockRate:   90000,
	SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
}

// FeedSource provides frames of the running preview.
type FeedSource interface {
	Subscribe() (preview.Feed, error)
}

// Sender answers offers from viewers and streams the preview to each.
type Sender struct {
	source        FeedSource
	encService    encoders.Service
	webrtcConfig  webrtc.Configuration
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id       string
	peerConn *webrtc.PeerConnection
	streamer *rtcStreamer
}

// NewSender creates a sender. An empty stunURL disables STUN.
func NewSender(source FeedSource, encService encoders.Service, stunURL string, loggerFactory logging.LoggerFactory) *Sender {
	peerConConfig := webrtc.Configuration{}
	if stunURL != "" {
		peerConConfig.ICEServers = []webrtc.ICEServer{
			{
				URLs: []string{stunURL},
			},
		}
	}
	if loggerFactory == nil {
		loggerFactory = logs.Factory()
	}
	return &Sender{
		source:        source,
		encService:    encService,
		webrtcConfig:  peerConConfig,
		loggerFactory: loggerFactory,
		log:           logs.New(loggerFactory, "livestream"),
		sessions:      make(map[string]*session),
	}
}

// Answer takes a base64 encoded offer and returns the base64 encoded
// answer once ICE gathering completes.
func (s *Sender) Answer(ctx context.Context, encodedOffer string) (string, error) {
	offer := webrtc.SessionDescription{}
	if err := decodeOffer(encodedOffer, &offer); err != nil {
		return "", err
	}

	direction, err := getTrackDirection(&offer)
	if err != nil {
		return "", fmt.Errorf("parse offer: %w", err)
	}
	if direction == webrtc.RTPTransceiverDirectionInactive {
		return "", ErrNoVideoRequested
	}
	if !s.encService.Supports(encoders.H264Codec) {
		return "", fmt.Errorf("codec %s not supported", encoders.H264Codec)
	}

	feed, err := s.source.Subscribe()
	if err != nil {
		return "", err
	}

	sess, err := s.newSession(offer, direction, feed)
	if err != nil {
		feed.Cancel()
		return "", err
	}

	answer, err := s.negotiate(ctx, sess, offer)
	if err != nil {
		s.closeSession(sess.id)
		return "", err
	}
	return answer, nil
}

func (s *Sender) newSession(offer webrtc.SessionDescription, direction webrtc.RTPTransceiverDirection, feed preview.Feed) (*session, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: h264Capability,
		PayloadType:        102,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}
	interceptors := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptors); err != nil {
		return nil, err
	}
	settingEngine := webrtc.SettingEngine{LoggerFactory: s.loggerFactory}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptors),
		webrtc.WithSettingEngine(settingEngine),
	)

	peerConnection, err := api.NewPeerConnection(s.webrtcConfig)
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(h264Capability, "camera-video", uuid.New().String())
	if err != nil {
		_ = peerConnection.Close()
		return nil, err
	}

	var rtpSender *webrtc.RTPSender
	if direction == webrtc.RTPTransceiverDirectionSendrecv {
		rtpSender, err = peerConnection.AddTrack(track)
	} else {
		var transceiver *webrtc.RTPTransceiver
		transceiver, err = peerConnection.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
		if err == nil {
			rtpSender = transceiver.Sender()
		}
	}
	if err != nil {
		_ = peerConnection.Close()
		return nil, err
	}

	// Read incoming RTCP packets
	// Before these packets are returned they are processed by interceptors. For things
	// like NACK this needs to be called.
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	encoder, err := s.encService.NewEncoder(encoders.H264Codec, feed.Size, int(feed.FrameRate))
	if err != nil {
		_ = peerConnection.Close()
		return nil, err
	}
	encSize, err := encoder.VideoSize()
	if err != nil {
		_ = encoder.Close()
		_ = peerConnection.Close()
		return nil, err
	}
	s.log.Debugf("encoding %s at %s, %.0f fps", encoders.H264Codec, encSize.String(), feed.FrameRate)

	sess := s.addSession(peerConnection, track, feed, encoder, encSize)

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.log.Infof("viewer %s: ICE connection state %s", sess.id, state.String())
		switch state {
		case webrtc.ICEConnectionStateConnected:
			sess.streamer.start()
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			go s.closeSession(sess.id)
		}
	})
	return sess, nil
}

// addSession registers a viewer. The viewer is hung up when its feed ends,
// which happens when the preview stops.
func (s *Sender) addSession(pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample, feed preview.Feed, encoder encoders.Encoder, encSize size.Size) *session {
	sess := &session{
		id:       uuid.New().String(),
		peerConn: pc,
	}
	sess.streamer = newRTCStreamer(track, feed, encoder, encSize, s.log, func() {
		s.log.Infof("viewer %s: stream ended, hanging up", sess.id)
		go s.closeSession(sess.id)
	})

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *Sender) negotiate(ctx context.Context, sess *session, offer webrtc.SessionDescription) (string, error) {
	pc := sess.peerConn
	if err := pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}

	// Create channel that is blocked until ICE Gathering is complete
	gatherComplete := webrtc.GatheringCompletePromise(pc)

	if err = pc.SetLocalDescription(answer); err != nil {
		return "", err
	}

	// Only one signaling message is exchanged, so trickle ICE is off.
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return encodeOffer(*pc.LocalDescription())
}

func (s *Sender) closeSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.streamer.Close()
	if err := sess.peerConn.Close(); err != nil {
		s.log.Warnf("viewer %s: closing peer connection: %v", id, err)
	}
}

// Sessions returns the number of connected or negotiating viewers.
func (s *Sender) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close hangs up every viewer.
func (s *Sender) Close() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.closeSession(id)
	}
	return nil
}

// decodeOffer decodes a base64 JSON session description
func decodeOffer(in string, obj interface{}) error {
	b, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	if err := json.Unmarshal(b, obj); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	return nil
}

// encodeOffer encodes a session description as base64 JSON
func encodeOffer(obj interface{}) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func getTrackDirection(sdp *webrtc.SessionDescription) (webrtc.RTPTransceiverDirection, error) {
	sdpInfo, err := sdp.Unmarshal()
	if err != nil {
		return webrtc.RTPTransceiverDirectionInactive, err
	}
	for _, mediaDesc := range sdpInfo.MediaDescriptions {
		if mediaDesc.MediaName.Media == webrtc.RTPCodecTypeVideo.String() {
			if _, recvOnly := mediaDesc.Attribute("recvonly"); recvOnly {
				return webrtc.RTPTransceiverDirectionRecvonly, nil
			} else if _, sendRecv := mediaDesc.Attribute("sendrecv"); sendRecv {
				return webrtc.RTPTransceiverDirectionSendrecv, nil
			}
		}
	}
	return webrtc.RTPTransceiverDirectionInactive, nil
}
