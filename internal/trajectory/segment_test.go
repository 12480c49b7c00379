package trajectory_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/kartlab/kartbench/internal/trajectory"
)

func TestSegment(t *testing.T) {
	Convey("Given a 100 sample reference split in 5 windows of 20", t, func() {
		ref := line(100, trajectory.Vec3{})
		split, err := trajectory.Segment(ref, 5, 20)
		So(err, ShouldBeNil)

		Convey("Windows start every 20 samples and none is dropped", func() {
			So(split.Offsets, ShouldResemble, []int{0, 20, 40, 60, 80})
			So(split.Amount, ShouldEqual, 5)
			for i, w := range split.Windows {
				So(w.Len(), ShouldEqual, 20)
				So(w.First(), ShouldResemble, ref.At(split.Offsets[i]))
			}
		})

		Convey("The last window ends on the last sample", func() {
			last := split.Windows[split.Amount-1]
			So(last.At(last.Len()-1), ShouldResemble, ref.At(99))
		})
	})

	Convey("Given a 50 sample reference split in 5 windows of 20", t, func() {
		ref := line(50, trajectory.Vec3{})
		split, err := trajectory.Segment(ref, 5, 20)
		So(err, ShouldBeNil)

		Convey("The stride rounds down and every window stays in bounds", func() {
			So(split.Offsets, ShouldResemble, []int{0, 7, 14, 21, 28})
			So(split.Amount, ShouldEqual, 5)
			last := split.Windows[4]
			So(last.At(19), ShouldResemble, ref.At(47))
		})
	})

	Convey("Offsets are non-decreasing and start at zero for any valid input", t, func() {
		for total := 2; total <= 40; total++ {
			ref := line(total, trajectory.Vec3{})
			for length := 1; length < total; length++ {
				for amount := 1; amount <= 12; amount++ {
					split, err := trajectory.Segment(ref, amount, length)
					So(err, ShouldBeNil)
					So(split.Offsets[0], ShouldEqual, 0)
					for i := 1; i < len(split.Offsets); i++ {
						So(split.Offsets[i], ShouldBeGreaterThanOrEqualTo, split.Offsets[i-1])
					}
					So(split.Amount, ShouldEqual, len(split.Windows))
					So(split.Amount, ShouldBeLessThanOrEqualTo, amount)
				}
			}
		}
	})

	Convey("Segmenting twice gives identical windows", t, func() {
		ref := line(73, trajectory.Vec3{Z: 3})
		a, err := trajectory.Segment(ref, 6, 11)
		So(err, ShouldBeNil)
		b, err := trajectory.Segment(ref, 6, 11)
		So(err, ShouldBeNil)
		So(a.Offsets, ShouldResemble, b.Offsets)
		for i := range a.Windows {
			So(a.Windows[i].Equal(b.Windows[i]), ShouldBeTrue)
		}
	})

	Convey("A single window starts at zero", t, func() {
		split, err := trajectory.Segment(line(30, trajectory.Vec3{}), 1, 10)
		So(err, ShouldBeNil)
		So(split.Offsets, ShouldResemble, []int{0})
	})

	Convey("A window as long as the reference is rejected naming both lengths", t, func() {
		_, err := trajectory.Segment(line(20, trajectory.Vec3{}), 3, 20)
		var splitErr *trajectory.SplitError
		So(errors.As(err, &splitErr), ShouldBeTrue)
		So(splitErr.SplitLength, ShouldEqual, 20)
		So(splitErr.Total, ShouldEqual, 20)
		So(errors.Is(err, trajectory.ErrInvariant), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "20")
	})

	Convey("Non-positive parameters are configuration errors", t, func() {
		_, err := trajectory.Segment(line(20, trajectory.Vec3{}), 0, 5)
		So(errors.Is(err, trajectory.ErrInvalidSplit), ShouldBeTrue)
		_, err = trajectory.Segment(line(20, trajectory.Vec3{}), 2, 0)
		So(errors.Is(err, trajectory.ErrInvalidSplit), ShouldBeTrue)
	})
}
