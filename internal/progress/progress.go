package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar reports freezing progress. A nil *Bar is valid and does nothing, so
// callers never have to check whether progress output was requested.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar of unknown length: the number of directives is only
// known once the expansion has been pulled to the end.
func New(w io.Writer, description string) *Bar {
	return &Bar{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)}
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
