package files_manager

import (
	"fmt"
	"os"
)

// AtomicOutput hands out a temporary path next to the final one. The final
// path only ever appears through a rename of a complete file.
type AtomicOutput struct {
	FinalPath string
	TmpPath   string
}

func NewAtomicOutput(finalPath string) *AtomicOutput {
	return &AtomicOutput{
		FinalPath: finalPath,
		TmpPath:   finalPath + ".tmp",
	}
}

// Commit moves the temporary file into place.
func (o *AtomicOutput) Commit() error {
	info, err := os.Stat(o.TmpPath)
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}
	if info.Size() == 0 {
		o.Discard()
		return fmt.Errorf("file is empty: %s", o.TmpPath)
	}
	if err := os.Rename(o.TmpPath, o.FinalPath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Discard removes the temporary file, if any.
func (o *AtomicOutput) Discard() {
	_ = os.Remove(o.TmpPath)
}
