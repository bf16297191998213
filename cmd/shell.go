package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dyastin-0/lanshare/config"
	"github.com/Dyastin-0/lanshare/core"
	"github.com/Dyastin-0/lanshare/progress"
	"github.com/Dyastin-0/lanshare/styles"
	"github.com/Dyastin-0/lanshare/ui"
	"github.com/c-bata/go-prompt"
	"github.com/urfave/cli/v3"
)

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:   "shell",
		Usage:  "interactive shell to share, browse and fetch offers",
		Flags:  transferFlags(),
		Action: shellAction,
	}
}

type shell struct {
	ctx         context.Context
	node        *core.Node
	cfg         *config.Config
	keepPartial bool
	// listed is the offer list last printed, so "fetch <n>" matches what the
	// user saw.
	listed []core.Entry
}

func shellAction(ctx context.Context, cmd *cli.Command) error {
	node, cfg, _, err := startNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer node.Close()

	sh := &shell{
		ctx:         ctx,
		node:        node,
		cfg:         cfg,
		keepPartial: cmd.Bool("keep-partial"),
	}

	fmt.Println(styles.TITLE.Render(fmt.Sprintf("lanshare shell, node %s", node.Identity())))
	fmt.Println("Type 'help' for commands.")

	prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionPrefix("lanshare> "),
		prompt.OptionTitle("lanshare"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
	).Run()

	return nil
}

func isExit(in string) bool {
	in = strings.TrimSpace(in)
	return in == "exit" || in == "quit"
}

func (sh *shell) execute(in string) {
	blocks := strings.Fields(in)
	if len(blocks) == 0 {
		return
	}

	switch blocks[0] {
	case "exit", "quit":
		fmt.Println("Goodbye!")
	case "offers":
		sh.listed = sh.node.Offers()
		fmt.Println(ui.OffersTable(sh.listed))
	case "share":
		if len(blocks) < 2 {
			sh.pickFiles()
			return
		}
		sh.share(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(in), "share")))
	case "shared":
		for _, name := range sh.node.Shared() {
			fmt.Println(styles.FILE.Render(name))
		}
	case "fetch":
		if len(blocks) < 2 {
			fmt.Println("Usage: fetch <n>")
			return
		}
		sh.fetchIndex(blocks[1])
	case "pick":
		sh.pick()
	case "sessions":
		for _, s := range sh.node.Sessions() {
			fmt.Println(ui.FormatSession(s))
		}
	case "cancel":
		if len(blocks) < 2 {
			fmt.Println("Usage: cancel <session id>")
			return
		}
		sh.cancel(blocks[1])
	case "help":
		fmt.Println("Available commands:")
		fmt.Println("  offers                 - List offers seen on the network")
		fmt.Println("  share [path]           - Serve and announce a file, or pick files")
		fmt.Println("  shared                 - List files this node serves")
		fmt.Println("  fetch <n>              - Download offer n from the last listing")
		fmt.Println("  pick                   - Choose offers to download")
		fmt.Println("  sessions               - Show transfer sessions")
		fmt.Println("  cancel <id>            - Cancel an outgoing transfer")
		fmt.Println("  exit                   - Leave the shell")
	default:
		fmt.Println("Unknown command: " + blocks[0])
	}
}

func (sh *shell) complete(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "offers", Description: "List offers"},
		{Text: "share", Description: "Share a file"},
		{Text: "shared", Description: "List shared files"},
		{Text: "fetch", Description: "Download an offer by number"},
		{Text: "pick", Description: "Choose offers to download"},
		{Text: "sessions", Description: "Show transfer sessions"},
		{Text: "cancel", Description: "Cancel an outgoing transfer"},
		{Text: "help", Description: "Show help"},
		{Text: "exit", Description: "Leave the shell"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func (sh *shell) pickFiles() {
	selector := ui.NewFileSelector(".", sh.node.Shared)
	if err := selector.Run(); err != nil {
		fmt.Println(styles.INFO.Render(err.Error()))
		return
	}

	for _, path := range selector.Paths() {
		sh.share(path)
	}
}

func (sh *shell) share(path string) {
	offer, err := sh.node.Announce(path)
	if err != nil {
		fmt.Println(styles.ERROR.Render(err.Error()))
		return
	}
	fmt.Println(styles.SUCCESS.Render(fmt.Sprintf("offered %s", offer)))
}

func (sh *shell) fetchIndex(arg string) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > len(sh.listed) {
		fmt.Println(styles.ERROR.Render(fmt.Sprintf("no offer %q, run 'offers' first", arg)))
		return
	}
	sh.fetch(sh.listed[i-1])
}

func (sh *shell) pick() {
	selector := ui.NewOfferSelector(sh.node.Offers)
	if err := selector.RunRecur(); err != nil {
		fmt.Println(styles.INFO.Render(err.Error()))
		return
	}

	for _, e := range selector.GetSelected() {
		sh.fetch(e)
	}
}

func (sh *shell) fetch(e core.Entry) {
	bar := progress.DefaultBar(e.FileSize, e.FileName)
	start := time.Now()

	path, n, err := download(sh.ctx, sh.node, e, sh.cfg.Dir, sh.keepPartial, bar)
	if err != nil {
		fmt.Println(styles.ERROR.Render(fmt.Sprintf("%s: %v", e.FileName, err)))
		return
	}
	fmt.Println(ui.Received(path, n, time.Since(start)))
}

func (sh *shell) cancel(prefix string) {
	for _, s := range sh.node.Sessions() {
		if s.Direction != core.DirectionSend || s.State.Done() || !strings.HasPrefix(s.ID, prefix) {
			continue
		}
		if sh.node.CancelSession(s.ID) {
			fmt.Println(styles.WARNING.Render(fmt.Sprintf("cancelled %s", s.ID)))
			return
		}
	}
	fmt.Println(styles.ERROR.Render(fmt.Sprintf("no active send session %q", prefix)))
}
