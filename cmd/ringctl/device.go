package main

import (
	"time"

	"go.uber.org/zap"

	"nandring/blockdev"
	"nandring/monoclock"
	"nandring/nandsvc"
	"nandring/ringlog"
)

// wallClockTicks is the TickSource ringctl backs monoclock with: there
// is no real hardware tick counter in a demo CLI, so wall-clock
// nanoseconds stand in for it.
type wallClockTicks struct{}

func (wallClockTicks) Ticks() uint64 { return uint64(time.Now().UnixNano()) }

// session bundles every component a subcommand needs: one device, one
// service, one clock, one ring.
type session struct {
	cfg    *Config
	log    *zap.Logger
	device *blockdev.SimDevice
	svc    *nandsvc.Service
	clock  *monoclock.Clock
	ring   *ringlog.Ring
}

func newSession(cfg *Config, log *zap.Logger) (*session, error) {
	device, err := blockdev.LoadOrCreateSimDeviceFile(cfg.ImagePath, cfg.Geometry)
	if err != nil {
		return nil, err
	}
	svc := nandsvc.NewService(device, log)
	clock := monoclock.New(wallClockTicks{}, 1_000_000_000, 64)
	ring := ringlog.New(device, svc, clock, log)

	workarea := make([]byte, cfg.Geometry.PageSize())
	if err := ring.Start(cfg.Ring, workarea); err != nil {
		return nil, err
	}

	return &session{cfg: cfg, log: log, device: device, svc: svc, clock: clock, ring: ring}, nil
}

// save persists the device's content back to the configured image path,
// so the next ringctl invocation observes whatever this one did.
func (s *session) save() error {
	return s.device.SaveToFile(s.cfg.ImagePath)
}
