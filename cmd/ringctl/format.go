package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Erase the entire ring, discarding any recorded sessions",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFormat(); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func runFormat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := initLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	sess, err := newSession(cfg, log)
	if err != nil {
		return fmt.Errorf("ringctl: open device: %w", err)
	}
	if err := sess.ring.Erase(); err != nil {
		return fmt.Errorf("ringctl: format: %w", err)
	}
	if err := sess.save(); err != nil {
		return fmt.Errorf("ringctl: save image: %w", err)
	}
	log.Info("ringctl: formatted", zap.String("image", cfg.ImagePath), zap.Int("blocks", cfg.Ring.Len))
	return nil
}
