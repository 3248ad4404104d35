package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nandring/asynclog"
)

var writeCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "Mount the ring, append the contents of a file through the async logger, and unmount",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWrite(args[0]); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func runWrite(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := initLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ringctl: read %s: %w", path, err)
	}

	sess, err := newSession(cfg, log)
	if err != nil {
		return fmt.Errorf("ringctl: open device: %w", err)
	}
	if err := sess.ring.Mount(); err != nil {
		return fmt.Errorf("ringctl: write: mount: %w", err)
	}

	logger := asynclog.New(cfg.Geometry.PageDataSize, asynclog.DefaultSlabCount, log)
	if err := logger.Start(sess.ring); err != nil {
		return fmt.Errorf("ringctl: write: start logger: %w", err)
	}

	n, err := logger.Write(data)
	if err != nil {
		log.Warn("ringctl: write returned an error mid-stream", zap.Error(err))
	}
	if err := logger.Stop(); err != nil {
		log.Warn("ringctl: worker reported an error while draining", zap.Error(err))
	}
	sess.ring.Umount()

	log.Info("ringctl: wrote file", zap.String("path", path), zap.Int("bytes", n), zap.Int("of", len(data)))
	if n < len(data) {
		fmt.Printf("warning: only %d of %d bytes were accepted (slab pool exhausted)\n", n, len(data))
	}
	return sess.save()
}
