package cmd

import (
	"context"
	"io"
	"os"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/urfave/cli/v3"
)

func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "keep-partial",
			Usage: "keep the partial file when a download fails",
		},
	}
}

// download pulls e into dir. Failed downloads are removed unless keepPartial.
func download(ctx context.Context, node *core.Node, e core.Entry, dir string, keepPartial bool, bar io.Writer) (string, int64, error) {
	d, err := node.Fetch(ctx, e)
	if err != nil {
		return "", 0, err
	}
	defer d.Close()

	if bar != nil {
		d.Tee(bar)
	}

	path, n, err := core.Save(dir, e.FileName, d)
	if err != nil && path != "" && !keepPartial {
		os.Remove(path)
		path = ""
	}

	return path, n, err
}
