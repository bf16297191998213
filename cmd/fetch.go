package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/Dyastin-0/lanshare/progress"
	"github.com/Dyastin-0/lanshare/ui"
	"github.com/charmbracelet/huh/spinner"
	"github.com/urfave/cli/v3"
)

var ErrNoOffer = errors.New("no matching offer")

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "wait for a specific offer and download it",
		ArgsUsage: "<sender> <file>",
		Flags: append(transferFlags(),
			&cli.DurationFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "how long to wait for the offer",
				Value:   time.Minute,
			},
		),
		Action: fetchAction,
	}
}

func fetchAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: fetch <sender> <file>")
	}
	sender := core.NodeIdentity(cmd.Args().Get(0))
	name := cmd.Args().Get(1)

	node, cfg, _, err := startNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer node.Close()

	var entry core.Entry
	err = spinner.New().
		Title(fmt.Sprintf("waiting for %s from %s...", name, sender)).
		ActionWithErr(func(context.Context) error {
			var err error
			entry, err = waitForOffer(ctx, node, sender, name, cmd.Duration("wait"))
			return err
		}).
		Run()
	if err != nil {
		return err
	}

	bar := progress.DefaultBar(entry.FileSize, entry.FileName)
	start := time.Now()

	path, n, err := download(ctx, node, entry, cfg.Dir, cmd.Bool("keep-partial"), bar)
	if err != nil {
		return err
	}

	fmt.Println(ui.Received(path, n, time.Since(start)))
	return nil
}

func waitForOffer(ctx context.Context, node *core.Node, sender core.NodeIdentity, name string, wait time.Duration) (core.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if e, ok := node.Lookup(sender, name); ok {
			return e, nil
		}

		select {
		case <-ctx.Done():
			return core.Entry{}, fmt.Errorf("%w: %s from %s", ErrNoOffer, name, sender)
		case <-ticker.C:
		}
	}
}
