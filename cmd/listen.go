package cmd

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/Dyastin-0/lanshare/progress"
	"github.com/Dyastin-0/lanshare/styles"
	"github.com/Dyastin-0/lanshare/ui"
	"github.com/urfave/cli/v3"
)

const offerQueue = 64

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "show offers as they arrive and download the ones you accept",
		Flags: append(transferFlags(),
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "download every offer without asking",
			},
		),
		Action: listenAction,
	}
}

func listenAction(ctx context.Context, cmd *cli.Command) error {
	node, cfg, log, err := startNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer node.Close()

	offers := make(chan core.Entry, offerQueue)
	node.OnOffer(func(e core.Entry) {
		select {
		case offers <- e:
		default:
			log.WithStr("file", e.FileName).Warn("offer queue full, dropping")
		}
	})

	fmt.Println(styles.TITLE.Render(fmt.Sprintf("listening as %s", node.Identity())))
	fmt.Println(styles.INFO.Render(fmt.Sprintf("saving to %s", cfg.Dir)))

	p := progress.New()
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		p.Wait()
	}()

	// Re-announcements repeat offers; ask once per version.
	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-offers:
			k := e.Sender.String() + core.Separator + e.FileName + core.Separator + strconv.FormatInt(e.FileSize, 10)
			if seen[k] {
				continue
			}
			seen[k] = true

			fmt.Println(ui.FormatOffer(e))

			if !cmd.Bool("yes") && !ui.ConfirmOffer(e) {
				continue
			}

			bar := p.NewBar(e.FileSize, e.FileName)
			wg.Add(1)
			go func() {
				defer wg.Done()

				path, n, err := download(ctx, node, e, cfg.Dir, cmd.Bool("keep-partial"), progress.Counter(bar))
				progress.Finish(bar, err)
				if err != nil {
					log.WithStr("file", e.FileName).WithErr(err).Warn("download failed")
					return
				}
				log.WithStr("path", path).WithInt64("bytes", n).Info("saved")
			}()
		}
	}
}
