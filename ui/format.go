package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/Dyastin-0/lanshare/styles"
	"github.com/dustin/go-humanize"
)

const maxNameWidth = 32

// FormatOffer renders one registry entry on a single line.
func FormatOffer(e core.Entry) string {
	return fmt.Sprintf("%s %s %s %s",
		styles.SENDER.Render(e.Sender.String()),
		styles.FILE.Render(truncate(e.FileName, maxNameWidth)),
		humanize.IBytes(uint64(e.FileSize)),
		styles.INFO.Render(since(e.ReceivedAt)),
	)
}

// FormatSession renders a session snapshot for the sessions listing.
func FormatSession(s core.Session) string {
	line := fmt.Sprintf("%-8s %-7s %-24s %-21s %s",
		shortID(s.ID),
		s.Direction,
		truncate(s.FileName, 24),
		s.Peer,
		humanize.IBytes(uint64(s.Bytes)),
	)

	switch s.State {
	case core.StateCompleted:
		return styles.SUCCESS.Render(line + " completed")
	case core.StateFailed:
		return styles.ERROR.Render(fmt.Sprintf("%s failed: %s", line, s.Reason))
	default:
		return line + " " + string(s.State)
	}
}

// OffersTable numbers entries from 1 so they can be picked by index.
func OffersTable(entries []core.Entry) string {
	if len(entries) == 0 {
		return styles.INFO.Render("no offers yet")
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%3d  %s", i+1, FormatOffer(e))
	}

	return styles.TABLE.Render(b.String())
}

// Received describes a finished download.
func Received(path string, n int64, elapsed time.Duration) string {
	rate := ""
	if secs := elapsed.Seconds(); secs > 0 {
		rate = fmt.Sprintf(" (%s/s)", humanize.IBytes(uint64(float64(n)/secs)))
	}
	return styles.SUCCESS.Render(fmt.Sprintf("saved %s, %s%s", path, humanize.IBytes(uint64(n)), rate))
}

func since(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
