package progress

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress renders one bar per concurrent transfer.
type Progress struct {
	progress *mpb.Progress
	out      io.Writer
}

func New() *Progress {
	return &Progress{
		progress: mpb.New(),
	}
}

// NewWithOutput renders to w instead of stdout.
func NewWithOutput(w io.Writer) *Progress {
	return &Progress{
		progress: mpb.New(mpb.WithOutput(w)),
		out:      w,
	}
}

// NewBar adds a bar expecting n bytes. It only completes through Finish, so
// a transfer that ends short of n still settles.
func (p *Progress) NewBar(n int64, text string) *mpb.Bar {
	bar := p.progress.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(text, decor.WC{W: 12, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnAbort(
				decor.Elapsed(1, decor.WC{W: 12, C: decor.DindentRight}),
				"failed",
			),
		),
	)
	bar.SetTotal(n, false)

	return bar
}

// Counter returns a writer that advances bar by the length of each write.
func Counter(bar *mpb.Bar) io.Writer {
	return counter{bar: bar}
}

type counter struct {
	bar *mpb.Bar
}

func (c counter) Write(p []byte) (int, error) {
	c.bar.IncrBy(len(p))
	return len(p), nil
}

// Finish completes bar at its current count, or aborts it if err is set.
func Finish(bar *mpb.Bar, err error) {
	if err != nil {
		bar.Abort(false)
		return
	}
	bar.SetTotal(-1, true)
}

func (p *Progress) Wait() {
	p.progress.Wait()
}

func (p *Progress) Reset() {
	if p.progress != nil {
		p.progress.Wait()
	}

	if p.out != nil {
		p.progress = mpb.New(mpb.WithOutput(p.out))
		return
	}
	p.progress = mpb.New()
}
