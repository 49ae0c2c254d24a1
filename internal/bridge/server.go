package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/acentior/camera-preview/internal/logs"
	"github.com/acentior/camera-preview/pkg/preview"
)

// Plugin is the camera preview as seen by bridge clients.
type Plugin interface {
	Start(ctx context.Context, options preview.Options) error
	Stop(ctx context.Context) error
	Capture(ctx context.Context, options preview.PictureOptions) (preview.CaptureResult, error)
	CaptureSample(ctx context.Context, options preview.SampleOptions) (preview.CaptureResult, error)
	GetSupportedFlashModes(ctx context.Context) ([]preview.FlashMode, error)
	SetFlashMode(ctx context.Context, mode preview.FlashMode) error
	Flip(ctx context.Context) error
}

// Answerer answers base64 encoded WebRTC offers.
type Answerer interface {
	Answer(ctx context.Context, offer string) (string, error)
}

// Server upgrades HTTP requests to bridge connections.
type Server struct {
	plugin   Plugin
	answerer Answerer
	upgrader websocket.Upgrader
	log      logging.LeveledLogger
}

// NewServer creates a bridge server. A nil answerer rejects SDP offers.
func NewServer(plugin Plugin, answerer Answerer, loggerFactory logging.LoggerFactory) *Server {
	return &Server{
		plugin:   plugin,
		answerer: answerer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logs.New(loggerFactory, "bridge"),
	}
}

type conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (c *conn) send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("upgrade: %v", err)
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	// Calls of one connection run in arrival order; SDP answers may overlap them.
	calls := make(chan *Message, 16)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range calls {
			s.reply(c, s.handle(ctx, msg))
		}
	}()
	defer func() {
		close(calls)
		cancel()
		wg.Wait()
	}()

	s.log.Infof("client %s connected", r.RemoteAddr)
	if err := c.send(&Message{Type: Connected}); err != nil {
		s.log.Warnf("client %s: %v", r.RemoteAddr, err)
		return
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("client %s: read: %v", r.RemoteAddr, err)
			}
			s.log.Infof("client %s disconnected", r.RemoteAddr)
			return
		}

		msg := &Message{}
		if err := json.Unmarshal(raw, msg); err != nil {
			s.reply(c, &Message{Type: Error, Error: &ErrorBody{Message: "malformed message: " + err.Error(), Code: CodeInvalidArgument}})
			continue
		}

		if msg.Type == Call {
			calls <- msg
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.reply(c, s.handle(ctx, msg))
		}()
	}
}

func (s *Server) reply(c *conn, msg *Message) {
	if err := c.send(msg); err != nil {
		s.log.Warnf("reply %s %s: %v", msg.Type, msg.ID, err)
	}
}

func (s *Server) handle(ctx context.Context, msg *Message) *Message {
	switch msg.Type {
	case Call:
		data, err := s.call(ctx, msg.Method, msg.Options)
		if err != nil {
			s.log.Debugf("%s: %v", msg.Method, err)
			return &Message{Type: Result, ID: msg.ID, Method: msg.Method, Error: errorBody(err)}
		}
		return &Message{Type: Result, ID: msg.ID, Method: msg.Method, Data: data}
	case SDP:
		if s.answerer == nil {
			return &Message{Type: Error, ID: msg.ID, Error: &ErrorBody{Message: "live view not available", Code: CodeUnimplemented}}
		}
		answer, err := s.answerer.Answer(ctx, msg.SDP)
		if err != nil {
			return &Message{Type: Error, ID: msg.ID, Error: errorBody(err)}
		}
		return &Message{Type: SDP, ID: msg.ID, SDP: answer}
	}
	return &Message{Type: Error, ID: msg.ID, Error: &ErrorBody{
		Message: fmt.Sprintf("unexpected message type %q", msg.Type),
		Code:    CodeInvalidArgument,
	}}
}

func (s *Server) call(ctx context.Context, method string, rawOptions json.RawMessage) (json.RawMessage, error) {
	switch method {
	case MethodStart:
		var options preview.Options
		if err := decodeOptions(rawOptions, &options); err != nil {
			return nil, err
		}
		return nil, s.plugin.Start(ctx, options)
	case MethodStop:
		return nil, s.plugin.Stop(ctx)
	case MethodCapture:
		var options preview.PictureOptions
		if err := decodeOptions(rawOptions, &options); err != nil {
			return nil, err
		}
		return encodeData(s.plugin.Capture(ctx, options))
	case MethodCaptureSample:
		var options preview.SampleOptions
		if err := decodeOptions(rawOptions, &options); err != nil {
			return nil, err
		}
		return encodeData(s.plugin.CaptureSample(ctx, options))
	case MethodGetSupportedFlashModes:
		modes, err := s.plugin.GetSupportedFlashModes(ctx)
		return encodeData(FlashModesResult{Result: modes}, err)
	case MethodSetFlashMode:
		var options FlashModeOptions
		if err := decodeOptions(rawOptions, &options); err != nil {
			return nil, err
		}
		return nil, s.plugin.SetFlashMode(ctx, options.FlashMode)
	case MethodFlip:
		return nil, s.plugin.Flip(ctx)
	}
	return nil, &preview.UnsupportedError{Op: method}
}

func decodeOptions(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: options: %v", preview.ErrInvalidArgument, err)
	}
	return nil
}

func encodeData(v interface{}, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
