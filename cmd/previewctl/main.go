// Command previewctl drives a camera-preview server over its bridge.
//
//	previewctl [-addr ws://localhost:8080/bridge] start [-parent camera] [-position rear] ...
//	previewctl stop
//	previewctl capture [-quality 90] [-width 320] [-height 240] [-o picture.png]
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/acentior/camera-preview/internal/bridge"
	"github.com/acentior/camera-preview/pkg/preview"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/bridge", "bridge url")
	timeout := flag.Duration("timeout", 30*time.Second, "call timeout")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *addr, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "previewctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: previewctl [flags] start|stop|capture [command flags]\n")
	flag.PrintDefaults()
}

func run(ctx context.Context, addr, command string, args []string) error {
	client, err := bridge.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	switch command {
	case "start":
		return start(ctx, client, args)
	case "stop":
		return client.Call(ctx, bridge.MethodStop, nil, nil)
	case "capture":
		return capture(ctx, client, args)
	}
	return fmt.Errorf("unknown command %q", command)
}

func start(ctx context.Context, client *bridge.Client, args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	var options preview.Options
	fs.StringVar(&options.Parent, "parent", "camera", "container id")
	fs.StringVar(&options.ClassName, "class", "", "class name of the video element")
	fs.StringVar(&options.Position, "position", "", `"rear" for the environment facing camera`)
	fs.BoolVar(&options.DisableAudio, "no-audio", false, "skip the microphone permission")
	fs.IntVar(&options.Width, "width", 0, "requested video width")
	fs.IntVar(&options.Height, "height", 0, "requested video height")
	if err := fs.Parse(args); err != nil {
		return err
	}

	err := client.Call(ctx, bridge.MethodStart, options, nil)
	if errors.Is(err, preview.ErrAlreadyStarted) {
		fmt.Fprintln(os.Stderr, "preview already running")
		return nil
	}
	return err
}

func capture(ctx context.Context, client *bridge.Client, args []string) error {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	var options preview.PictureOptions
	fs.IntVar(&options.Quality, "quality", 0, "JPEG quality, 0 for PNG")
	fs.IntVar(&options.Width, "width", 0, "picture width")
	fs.IntVar(&options.Height, "height", 0, "picture height")
	out := fs.String("o", "", "output file (default picture.png or picture.jpg)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		*out = "picture.png"
		if options.Quality > 0 {
			*out = "picture.jpg"
		}
	}

	var result preview.CaptureResult
	if err := client.Call(ctx, bridge.MethodCapture, options, &result); err != nil {
		return err
	}
	picture, err := base64.StdEncoding.DecodeString(result.Value)
	if err != nil {
		return fmt.Errorf("decode picture: %w", err)
	}
	if err := os.WriteFile(*out, picture, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(picture))
	return nil
}
