package scan

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// ProgressBars returns a ProgressFunc drawing one bar per folder on w
func ProgressBars(w io.Writer) ProgressFunc {
	return func(folder string, total int) Bar {
		return progressbar.NewOptions(total,
			progressbar.OptionSetDescription(folder),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
		)
	}
}
