//go:build !nomicrophone

package main

// The start probe asks for audio unless disableAudio is set. Build with
// -tags nomicrophone on hosts without the malgo dependencies.
import _ "github.com/pion/mediadevices/pkg/driver/microphone"
