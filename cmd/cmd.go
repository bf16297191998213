// Package cmd is the lanshare command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/Dyastin-0/lanshare/config"
	"github.com/Dyastin-0/lanshare/core"
	"github.com/Dyastin-0/lanshare/logger"
	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v3"
)

const Version = "0.1.0"

func New() *cli.Command {
	return &cli.Command{
		Name:    "lanshare",
		Usage:   "offer files to everyone on your LAN, pull the ones you want",
		Version: Version,
		Flags:   globalFlags(),
		Action:  lanshareAction,
		Commands: []*cli.Command{
			shareCommand(),
			listenCommand(),
			fetchCommand(),
			shellCommand(),
		},
	}
}

func lanshareAction(ctx context.Context, cmd *cli.Command) error {
	figure := figure.NewFigure("lanshare", "", true)
	figure.Print()

	fmt.Println()

	return cli.ShowAppHelp(cmd)
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "TOML config file",
			Value:   "",
		},
		&cli.StringFlag{
			Name:  "identity",
			Usage: "node identity to use instead of the hardware address",
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "where received files are saved",
		},
		&cli.StringFlag{
			Name:  "log",
			Usage: "log file",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "debug logging, also on the console",
		},
	}
}

// setup merges defaults, the config file and flags, then builds the logger.
func setup(cmd *cli.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Find(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}

	if cmd.IsSet("identity") {
		cfg.Identity = cmd.String("identity")
	}
	if cmd.IsSet("dir") {
		cfg.Dir = cmd.String("dir")
	}
	if cmd.IsSet("log") {
		cfg.LogPath = cmd.String("log")
	}
	if cmd.Bool("verbose") {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log := logger.New()
	if cmd.Bool("verbose") {
		log.InitMultiWriter(cfg.LogPath)
	} else {
		log.Init(cfg.LogPath)
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return nil, nil, fmt.Errorf("%w: log_level: %v", config.ErrInvalidConfig, err)
	}

	return cfg, log, nil
}

// startNode builds and starts a node from the merged configuration.
func startNode(ctx context.Context, cmd *cli.Command) (*core.Node, *config.Config, logger.Logger, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	node := core.NewNode(cfg.Node(), cfg.Resolver(), log)
	if err := node.Start(ctx); err != nil {
		return nil, nil, nil, err
	}

	log.WithStr("identity", node.Identity().String()).
		WithStr("discovery", node.DiscoveryAddr().String()).
		WithStr("transfer", node.TransferAddr().String()).
		Info("node started")

	return node, cfg, log, nil
}
