package ui

import (
	"errors"
	"fmt"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
)

var ErrCanceled = errors.New("canceled")

func Continue(txt string) bool {
	var confirm bool

	huh.NewConfirm().
		Title(txt).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()

	return confirm
}

// ConfirmOffer asks whether to pull the offered file.
func ConfirmOffer(e core.Entry) bool {
	title := fmt.Sprintf("%s offers %s (%s). Download?", e.Sender, e.FileName, humanize.IBytes(uint64(e.FileSize)))
	return Continue(title)
}
