package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/pion/mediadevices/pkg/driver/camera" // This is required to register camera adapter

	"github.com/acentior/camera-preview/internal/bridge"
	"github.com/acentior/camera-preview/internal/config"
	"github.com/acentior/camera-preview/internal/dom"
	"github.com/acentior/camera-preview/internal/encoders"
	"github.com/acentior/camera-preview/internal/livestream"
	"github.com/acentior/camera-preview/internal/logs"
	"github.com/acentior/camera-preview/internal/media"
	"github.com/acentior/camera-preview/internal/server"
	"github.com/acentior/camera-preview/pkg/preview"
	"github.com/acentior/camera-preview/pkg/size"
)

func main() {
	cfg, err := config.LoadConfig()
	if err == nil {
		err = logs.SetLevel(cfg.LogLevel)
	}
	log := logs.New(nil, "main")
	if err != nil {
		log.Errorf("config: %v", err)
		os.Exit(1)
	}

	doc := dom.NewDocument()
	for _, id := range cfg.Containers {
		doc.AddContainer(id)
	}

	devices := media.NewPionDevices(cfg.RearDeviceID, cfg.FrontDeviceID)
	cameraPreview := preview.New(doc, devices, preview.Config{
		Size:          size.Size{Width: cfg.Width, Height: cfg.Height},
		FrameRate:     float64(cfg.FPS),
		LoggerFactory: logs.Factory(),
	})
	sender := livestream.NewSender(cameraPreview, encoders.NewEncoderService(), cfg.StunURL, logs.Factory())

	srv := server.New(cfg.ListenAddr, server.Deps{
		Preview:       cameraPreview,
		Document:      doc,
		Viewers:       sender,
		Bridge:        bridge.NewServer(cameraPreview, sender, logs.Factory()),
		LoggerFactory: logs.Factory(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("camera-preview: containers %v", cfg.Containers)
	err = srv.Start(ctx)

	_ = sender.Close()
	if stopErr := cameraPreview.Stop(context.Background()); stopErr != nil {
		log.Warnf("stopping preview: %v", stopErr)
	}
	if err != nil {
		log.Errorf("server: %v", err)
		os.Exit(1)
	}
}
