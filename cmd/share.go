package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/Dyastin-0/lanshare/styles"
	"github.com/Dyastin-0/lanshare/ui"
	"github.com/urfave/cli/v3"
)

func shareCommand() *cli.Command {
	return &cli.Command{
		Name:      "share",
		Usage:     "offer files to the network and serve them",
		ArgsUsage: "[files...]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "re-announce period, 0 announces once",
				Value:   10 * time.Second,
			},
		},
		Action: shareAction,
	}
}

func shareAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		selector := ui.NewFileSelector(".", nil)
		if err := selector.Run(); err != nil {
			return err
		}
		paths = selector.Paths()
	}

	if len(paths) == 0 {
		fmt.Println(styles.INFO.Render("nothing to share"))
		return nil
	}

	node, _, log, err := startNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer node.Close()

	node.OnSession(func(s core.Session) {
		if s.State.Done() {
			fmt.Println(ui.FormatSession(s))
		}
	})

	fmt.Println(styles.TITLE.Render(fmt.Sprintf("sharing as %s", node.Identity())))

	announce := func(verbose bool) {
		for _, path := range paths {
			offer, err := node.Announce(path)
			if err != nil {
				fmt.Println(styles.ERROR.Render(fmt.Sprintf("%s: %v", path, err)))
				continue
			}
			if verbose {
				fmt.Println(styles.SUCCESS.Render(fmt.Sprintf("offered %s", offer)))
			}
			log.WithStr("file", offer.FileName).WithInt64("size", offer.FileSize).Debug("announced")
		}
	}

	announce(true)

	interval := cmd.Duration("interval")
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			announce(false)
		}
	}
}
