package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount the ring and report the resulting cursor position",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMountAndReport("mount"); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Mount the ring and print its cursor, total good blocks, and debug counters",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMountAndReport("status"); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func runMountAndReport(verb string) error {
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
		return fmt.Errorf("ringctl: %s: %w", verb, err)
	}

	cursor := sess.ring.Cursor()
	fmt.Printf("mount_id:      %s\n", sess.ring.MountID())
	fmt.Printf("cur_blk:       %d\n", cursor.Blk)
	fmt.Printf("cur_page:      %d\n", cursor.Page)
	fmt.Printf("cur_id:        %d\n", cursor.ID)
	fmt.Printf("cur_back_link: %d\n", cursor.BackLink)
	fmt.Printf("total_good:    %d / %d\n", sess.ring.TotalGood(), cfg.Ring.Len)

	if verb == "status" {
		dbg := sess.ring.Debug()
		fmt.Printf("debug:\n")
		fmt.Printf("  data_rescue:        %d\n", dbg.DataRescue)
		fmt.Printf("  new_bad_blocks:     %d\n", dbg.NewBadBlocks)
		fmt.Printf("  write_data_failed:  %d\n", dbg.WriteDataFailed)
		fmt.Printf("  write_spare_failed: %d\n", dbg.WriteSpareFailed)
		fmt.Printf("  erase_failed:       %d\n", dbg.EraseFailed)
	}

	sess.ring.Umount()
	return sess.save()
}
