package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nandring/ringlog"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Mount the ring and list its recorded sessions newest first",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSessions(); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func runSessions() error {
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
	if err := sess.ring.Mount(); err != nil {
		return fmt.Errorf("ringctl: sessions: mount: %w", err)
	}

	it, err := sess.ring.Bind()
	if err != nil {
		return fmt.Errorf("ringctl: sessions: bind: %w", err)
	}
	fmt.Printf("classification: %s\n", it.Kind())

	for !it.Finished() {
		rs, err := it.Next()
		if err != nil {
			it.Release()
			return fmt.Errorf("ringctl: sessions: next: %w", err)
		}
		if rs.Failed {
			break
		}
		printSession(rs)
	}
	it.Release()

	sess.ring.Umount()
	return sess.save()
}

func printSession(rs ringlog.RingSession) {
	fmt.Printf("- id=%d first_blk=%d last_blk=%d last_page=%d time_boot_us=%d (%s)\n",
		rs.ID, rs.FirstBlk, rs.LastBlk, rs.LastPage, rs.TimeBootUs,
		time.Duration(rs.TimeBootUs)*time.Microsecond)
}
