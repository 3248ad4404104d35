package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var injectFaultCmd = &cobra.Command{
	Use:   "inject-fault <k>",
	Short: "Re-fill the ring's blocks with random data under a 1/k fault injection rate, reporting newly bad blocks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k, err := strconv.Atoi(args[0])
		if err != nil || k <= 0 {
			fmt.Printf("ERROR: k must be a positive integer, got %q\n", args[0])
			os.Exit(1)
		}
		if err := runInjectFault(k); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func runInjectFault(k int) error {
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

	sess.svc.SetErrorChance(k)
	newBad, err := sess.svc.FillRandomRange(cfg.Ring.StartBlk, cfg.Ring.Len)
	if err != nil {
		log.Warn("ringctl: inject-fault encountered block failures", zap.Error(err))
	}
	fmt.Printf("new_bad_blocks: %d / %d\n", newBad, cfg.Ring.Len)

	return sess.save()
}
