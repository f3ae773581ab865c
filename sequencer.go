package cameracanny

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FirstSequence is the number given to the first saved frame
const FirstSequence = 1

// FrameName returns the file name for sequence number seq.
//
// Numbers are zero-padded to three digits and grow past three digits instead
// of wrapping: 7 → frame007.pgm, 1000 → frame1000.pgm.
func FrameName(seq int) string {
	return fmt.Sprintf("frame%03d.pgm", seq)
}

// FramePath joins the output directory and FrameName(seq).
func FramePath(dir string, seq int) string {
	return filepath.Join(dir, FrameName(seq))
}

// EnsureOutputDir creates dir with mode 0755.
//
// An existing directory is success. Any other failure, including an existing
// non-directory at that path, is returned and the run must not start.
func EnsureOutputDir(dir string) error {
	err := os.Mkdir(dir, 0o755)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("could not create output directory %s: %w", dir, err)
	}

	info, statErr := os.Stat(dir)
	if statErr != nil {
		return fmt.Errorf("could not verify output directory %s: %w", dir, statErr)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %s exists and is not a directory", dir)
	}
	return nil
}
