package trajectory

import (
	"errors"
	"fmt"
)

// ErrInvalidSplit is returned for non-positive split parameters.
var ErrInvalidSplit = errors.New("invalid split configuration")

// SplitError reports a window length that does not fit in the source.
type SplitError struct {
	SplitLength int
	Total       int
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split length %d must be shorter than trajectory length %d", e.SplitLength, e.Total)
}

func (e *SplitError) Is(target error) bool { return target == ErrInvariant }

// Split is a set of equal-length evaluation windows carved from a reference.
type Split struct {
	// Amount is the number of windows actually produced, which can be lower
	// than requested.
	Amount  int
	Length  int
	Offsets []int
	Windows []Trajectory
}

// Segment carves splitAmount windows of splitLength samples out of ref,
// evenly spaced from the first sample towards the end. Start offsets are
// s * stride with stride = (total - splitLength) / (splitAmount - 1) in
// integer arithmetic. A window that would read past the end is dropped
// together with every window after it; partial windows are never built.
func Segment(ref Trajectory, splitAmount, splitLength int) (Split, error) {
	if splitAmount < 1 {
		return Split{}, fmt.Errorf("%w: split amount %d", ErrInvalidSplit, splitAmount)
	}
	if splitLength < 1 {
		return Split{}, fmt.Errorf("%w: split length %d", ErrInvalidSplit, splitLength)
	}
	total := ref.Len()
	if splitLength >= total {
		return Split{}, &SplitError{SplitLength: splitLength, Total: total}
	}

	stride := 0
	if splitAmount > 1 {
		stride = (total - splitLength) / (splitAmount - 1)
	}

	split := Split{Length: splitLength}
	for s := 0; s < splitAmount; s++ {
		offset := s * stride
		window, ok := ref.Slice(offset, splitLength)
		if !ok {
			break
		}
		split.Offsets = append(split.Offsets, offset)
		split.Windows = append(split.Windows, window)
	}
	split.Amount = len(split.Windows)
	return split, nil
}
