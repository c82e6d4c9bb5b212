package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/rpatcher/rpatcher/pkg/patchlib"
)

// console renders a stream of patchlib.Status values as progress bars,
// the reference UI named in SPEC_FULL.md §4.F standing in for a real game
// launcher frontend. Bars are created lazily on first use and reused
// across the download/installation phases of a single update run.
type console struct {
	progress    *mpb.Progress
	download    *mpb.Bar
	install     *mpb.Bar
	bytesPerSec float64
}

func newConsole() *console {
	return &console{progress: mpb.New(mpb.WithWidth(64))}
}

// consume renders one Status update. Callers drain a Controller's status
// channel and call this per value, then call finish once the channel is
// closed or a terminal Status (Ready/Error) has been observed.
func (c *console) consume(s patchlib.Status) {
	switch s.Kind {
	case patchlib.StatusDownloadInProgress:
		c.bytesPerSec = s.BytesPerSec
		c.downloadBar(s.Total).SetCurrent(int64(s.Done))
	case patchlib.StatusInstallationInProgress:
		c.installBar(s.Total).SetCurrent(int64(s.Done))
	case patchlib.StatusManualPatchApplied:
		fmt.Printf("applied %s\n", s.FileName)
	case patchlib.StatusReady:
		fmt.Println("up to date")
	case patchlib.StatusError:
		fmt.Printf("error: %s\n", s.Message)
	}
}

// finish waits for any bars still rendering to reach their final frame.
func (c *console) finish() {
	c.progress.Wait()
}

func (c *console) downloadBar(total int) *mpb.Bar {
	if c.download == nil {
		c.download = c.newBar("Downloading", total)
	}
	return c.download
}

func (c *console) installBar(total int) *mpb.Bar {
	if c.install == nil {
		c.install = c.newBar("Installing", total)
	}
	return c.install
}

func (c *console) newBar(name string, total int) *mpb.Bar {
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	return c.progress.New(int64(total),
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WC{W: 4}), "Complete"),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("%d / %d"),
			decor.Any(func(decor.Statistics) string {
				if name != "Downloading" {
					return ""
				}
				return "  " + humanize.Bytes(uint64(c.bytesPerSec)) + "/s"
			}),
		),
	)
}
