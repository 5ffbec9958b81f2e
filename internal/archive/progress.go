package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// Progress wraps a byte-count progress bar shared across sequential readers.
type Progress struct {
	bar *pb.ProgressBar
}

// NewProgress creates a started progress bar for the given total byte count.
func NewProgress(total int64, description string) *Progress {
	tmpl := fmt.Sprintf(`{{ "%s" }} {{ bar . "[" "=" ">" " " "]"}} {{speed . }} {{percent . }} {{rtime . " ETA"}}`, description)

	bar := pb.New64(total)
	bar.Set(pb.SIBytesPrefix, true)
	bar.SetTemplateString(tmpl)
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.Start()

	return &Progress{bar: bar}
}

// Reader returns r wrapped so that bytes read advance the bar.
func (p *Progress) Reader(r io.Reader) io.Reader {
	return p.bar.NewProxyReader(r)
}

// Writer returns w wrapped so that bytes written advance the bar.
func (p *Progress) Writer(w io.Writer) io.Writer {
	return p.bar.NewProxyWriter(w)
}

// Finish stops the bar.
func (p *Progress) Finish() {
	p.bar.Finish()
}
