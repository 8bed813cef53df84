package preview

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// Box is the bounding box a preview must fit in.
type Box struct {
	Width  int
	Height int
}

func (b Box) String() string {
	return strconv.Itoa(b.Width) + "x" + strconv.Itoa(b.Height)
}

// Validate reports whether both dimensions are positive.
func (b Box) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid preview box %s", b)
	}
	return nil
}

// ErrAlreadyExists is returned when the output exists and overwrite is off.
var ErrAlreadyExists = fmt.Errorf("preview already exists: %w", fs.ErrExist)

// ErrDurationUnknown matches any *DurationError.
var ErrDurationUnknown = errors.New("video duration unknown")

// DurationError reports a video whose duration is missing or not positive.
type DurationError struct {
	Duration float64
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("could not generate video preview: video duration is %v", e.Duration)
}

func (e *DurationError) Is(target error) bool {
	return target == ErrDurationUnknown
}

// CheckOutput enforces the overwrite guard: it fails with ErrAlreadyExists
// when out exists and overwrite is off.
func CheckOutput(out string, overwrite bool) error {
	if overwrite {
		return nil
	}
	_, err := os.Stat(out)
	if err == nil {
		return fmt.Errorf("%s: %w", out, ErrAlreadyExists)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("checking preview output %s: %w", out, err)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
