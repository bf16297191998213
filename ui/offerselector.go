package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/Dyastin-0/lanshare/styles"
	"github.com/charmbracelet/huh"
)

const PageSize = 25

// OfferSelector lets the user pick offers from the registry. The list is
// re-read on every round so offers arriving meanwhile show up.
type OfferSelector struct {
	selected string
	offers   func() []core.Entry
	Selected map[string]core.Entry
	filter   string
	page     int
}

func NewOfferSelector(offers func() []core.Entry) *OfferSelector {
	return &OfferSelector{
		offers:   offers,
		Selected: make(map[string]core.Entry),
	}
}

// key is unique because neither field may contain the separator.
func key(e core.Entry) string {
	return e.Sender.String() + core.Separator + e.FileName
}

func (o *OfferSelector) filteredOffers() []core.Entry {
	entries := o.offers()

	if o.filter != "" {
		filtered := make([]core.Entry, 0, len(entries))
		filterLower := strings.ToLower(o.filter)
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.FileName), filterLower) ||
				strings.Contains(strings.ToLower(e.Sender.String()), filterLower) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return entries
}

func (o *OfferSelector) formatOption(e core.Entry) string {
	text := FormatOffer(e)
	if _, ok := o.Selected[key(e)]; ok {
		text = styles.SUCCESS.Render("✓ ") + text
	}
	return text
}

func (o *OfferSelector) RunRecur() error {
	entries := o.filteredOffers()

	totalItems := len(entries)
	totalPages := (totalItems + PageSize - 1) / PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if o.page >= totalPages {
		o.page = totalPages - 1
	}
	if o.page < 0 {
		o.page = 0
	}

	var options []huh.Option[string]

	filterText := "Filter offers"
	if o.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", o.filter)
	}
	options = append(options, huh.NewOption(filterText, "filter"))
	options = append(options, huh.NewOption("Refresh", "refresh"))

	if totalPages > 1 {
		pageInfo := fmt.Sprintf("Page %d of %d (%d offers)", o.page+1, totalPages, totalItems)
		options = append(options, huh.NewOption(styles.PAGE.Render(pageInfo), "page_info"))

		if o.page > 0 {
			options = append(options, huh.NewOption("<-", "prev_page"))
		}
		if o.page < totalPages-1 {
			options = append(options, huh.NewOption("->", "next_page"))
		}
	}

	start := o.page * PageSize
	end := min(start+PageSize, len(entries))

	for _, e := range entries[start:end] {
		options = append(options, huh.NewOption(o.formatOption(e), key(e)))
	}

	options = append(options,
		huh.NewOption("Done", "done"),
		huh.NewOption("Cancel", "cancel"),
	)

	title := fmt.Sprintf("Choose offers (%d selected):", len(o.Selected))

	err := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&o.selected).
		Height(20).
		Run()
	if err != nil {
		return err
	}

	switch o.selected {
	case "cancel":
		return ErrCanceled
	case "done":
		return nil
	case "filter":
		if err := o.Filter(); err != nil {
			return err
		}
		return o.RunRecur()
	case "prev_page":
		o.page--
		return o.RunRecur()
	case "next_page":
		o.page++
		return o.RunRecur()
	case "refresh", "page_info":
		return o.RunRecur()
	default:
		o.Toggle(o.selected)
		return o.RunRecur()
	}
}

func (o *OfferSelector) Filter() error {
	var newFilter string

	err := huh.NewInput().
		Title("Filter offers (by file or sender):").
		Value(&newFilter).
		Placeholder(o.filter).
		Run()
	if err != nil {
		return err
	}

	o.SetFilter(newFilter)
	return nil
}

func (o *OfferSelector) SetFilter(filter string) {
	o.filter = strings.TrimSpace(filter)
	o.page = 0
}

// Toggle flips the selection of the offer with key k.
func (o *OfferSelector) Toggle(k string) {
	if _, ok := o.Selected[k]; ok {
		delete(o.Selected, k)
		return
	}

	for _, e := range o.offers() {
		if key(e) == k {
			o.Selected[k] = e
			return
		}
	}
}

// GetSelected returns the picked offers ordered by file name, then sender.
func (o *OfferSelector) GetSelected() []core.Entry {
	out := make([]core.Entry, 0, len(o.Selected))
	for _, e := range o.Selected {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FileName == out[j].FileName {
			return out[i].Sender < out[j].Sender
		}
		return out[i].FileName < out[j].FileName
	})

	return out
}

func (o *OfferSelector) ClearSelection() {
	o.Selected = make(map[string]core.Entry)
}
