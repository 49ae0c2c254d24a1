// Package bridge carries plugin calls between a client and the camera
// preview over a websocket, one JSON message per frame.
package bridge

import (
	"encoding/json"
	"errors"

	"github.com/acentior/camera-preview/pkg/preview"
)

type Type string

const (
	// Connected is sent by the server once the websocket is upgraded.
	Connected Type = "Connected"
	Call      Type = "Call"
	Result    Type = "Result"
	SDP       Type = "SDP"
	Error     Type = "Error"
)

// Error codes reported to clients. Forwarded host errors carry no code.
const (
	CodeAlreadyStarted  = "ALREADY_STARTED"
	CodeNotStarted      = "NOT_STARTED"
	CodeParentNotFound  = "PARENT_NOT_FOUND"
	CodeUnimplemented   = "UNIMPLEMENTED"
	CodeInvalidArgument = "INVALID_ARGUMENT"
)

// Plugin methods.
const (
	MethodStart                  = "start"
	MethodStop                   = "stop"
	MethodCapture                = "capture"
	MethodCaptureSample          = "captureSample"
	MethodGetSupportedFlashModes = "getSupportedFlashModes"
	MethodSetFlashMode           = "setFlashMode"
	MethodFlip                   = "flip"
)

type Message struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
	SDP     string          `json:"sdp,omitempty"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// FlashModeOptions are the options of setFlashMode.
type FlashModeOptions struct {
	FlashMode preview.FlashMode `json:"flashMode"`
}

// FlashModesResult is the data of getSupportedFlashModes.
type FlashModesResult struct {
	Result []preview.FlashMode `json:"result"`
}

var codeErrors = map[string]error{
	CodeAlreadyStarted:  preview.ErrAlreadyStarted,
	CodeNotStarted:      preview.ErrNotStarted,
	CodeParentNotFound:  preview.ErrParentNotFound,
	CodeUnimplemented:   preview.ErrUnsupported,
	CodeInvalidArgument: preview.ErrInvalidArgument,
}

func errorBody(err error) *ErrorBody {
	body := &ErrorBody{Message: err.Error()}
	for code, target := range codeErrors {
		if errors.Is(err, target) {
			body.Code = code
			break
		}
	}
	return body
}

// CallError is a failure reported by the server.
type CallError struct {
	Message string
	Code    string
}

func (e *CallError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Is matches the preview error behind the code, so callers can test
// errors.Is(err, preview.ErrAlreadyStarted) on either side of the bridge.
func (e *CallError) Is(target error) bool {
	if e.Code == "" {
		return false
	}
	return codeErrors[e.Code] == target
}
