package nandsvc

import "fmt"

func errBlockEraseFailed(blk int) error {
	return fmt.Errorf("nandsvc: erase failed on block %d", blk)
}

func errBlockWriteFailed(blk, page int) error {
	return fmt.Errorf("nandsvc: write failed on block %d page %d", blk, page)
}

func errWorkareaTooSmall(want, got int) error {
	return fmt.Errorf("nandsvc: workarea too small: need %d bytes, got %d", want, got)
}
