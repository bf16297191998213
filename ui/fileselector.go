package ui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Dyastin-0/lanshare/styles"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
)

// ErrNameTaken is returned when a second file with an already picked base
// name is chosen. Offers are announced by base name, so only one can be shared.
var ErrNameTaken = errors.New("a file with this name is already picked")

const (
	pickUp     = "\x00up"
	pickFilter = "\x00filter"
	pickPrev   = "\x00prev"
	pickNext   = "\x00next"
	pickInfo   = "\x00info"
	pickDone   = "\x00done"
	pickCancel = "\x00cancel"
)

// FileSelector walks directories and collects regular files to offer.
type FileSelector struct {
	dir    string
	shared func() []string
	filter string
	page   int

	// picks is keyed by offer name.
	picks map[string]pick
	size  int64
}

type pick struct {
	path string
	info os.FileInfo
}

// NewFileSelector starts in dir. shared, if set, reports the names already
// offered so they can be marked.
func NewFileSelector(dir string, shared func() []string) *FileSelector {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &FileSelector{
		dir:    dir,
		shared: shared,
		picks:  make(map[string]pick),
	}
}

// entries lists dir with directories first, then offerable files, narrowed
// by the filter.
func (f *FileSelector) entries() ([]os.DirEntry, error) {
	all, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(f.filter)
	out := all[:0]
	for _, e := range all {
		if !e.IsDir() && !e.Type().IsRegular() {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Name()), needle) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir() != out[j].IsDir() {
			return out[i].IsDir()
		}
		return strings.ToLower(out[i].Name()) < strings.ToLower(out[j].Name())
	})
	return out, nil
}

func (f *FileSelector) sharedNames() map[string]bool {
	names := make(map[string]bool)
	if f.shared == nil {
		return names
	}
	for _, n := range f.shared() {
		names[n] = true
	}
	return names
}

// label renders one row: picked files get a check mark, files already
// offered by this node are tagged.
func (f *FileSelector) label(e os.DirEntry, shared map[string]bool) string {
	if e.IsDir() {
		return styles.SENDER.Render(e.Name() + "/")
	}

	text := e.Name()
	if info, err := e.Info(); err == nil {
		text = fmt.Sprintf("%s  %s", text, humanize.IBytes(uint64(info.Size())))
	}
	if shared[e.Name()] {
		text += styles.INFO.Render("  (shared)")
	}

	if p, ok := f.picks[e.Name()]; ok && p.path == filepath.Join(f.dir, e.Name()) {
		return styles.FILE.Render("✓ " + text)
	}
	return text
}

func (f *FileSelector) options(entries []os.DirEntry) []huh.Option[string] {
	pages := max((len(entries)+PageSize-1)/PageSize, 1)
	f.page = min(max(f.page, 0), pages-1)

	var opts []huh.Option[string]
	if parent := filepath.Dir(f.dir); parent != f.dir {
		opts = append(opts, huh.NewOption("../", pickUp))
	}

	filterText := "Filter files"
	if f.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", f.filter)
	}
	opts = append(opts, huh.NewOption(filterText, pickFilter))

	if pages > 1 {
		info := fmt.Sprintf("Page %d of %d (%d items)", f.page+1, pages, len(entries))
		opts = append(opts, huh.NewOption(styles.PAGE.Render(info), pickInfo))
		if f.page > 0 {
			opts = append(opts, huh.NewOption("<-", pickPrev))
		}
		if f.page < pages-1 {
			opts = append(opts, huh.NewOption("->", pickNext))
		}
	}

	shared := f.sharedNames()
	start := f.page * PageSize
	for _, e := range entries[start:min(start+PageSize, len(entries))] {
		opts = append(opts, huh.NewOption(f.label(e, shared), filepath.Join(f.dir, e.Name())))
	}

	return append(opts,
		huh.NewOption("Done", pickDone),
		huh.NewOption("Cancel", pickCancel),
	)
}

// Run shows the picker until Done or Cancel is chosen.
func (f *FileSelector) Run() error {
	for {
		entries, err := f.entries()
		if err != nil {
			return err
		}

		var choice string
		title := fmt.Sprintf("Choose files to offer (%d picked, %s):", len(f.picks), humanize.IBytes(uint64(f.size)))
		err = huh.NewSelect[string]().
			Title(title).
			Options(f.options(entries)...).
			Value(&choice).
			Height(20).
			Run()
		if err != nil {
			return err
		}

		switch choice {
		case pickCancel:
			return ErrCanceled
		case pickDone:
			return nil
		case pickUp:
			f.cd(filepath.Dir(f.dir))
		case pickFilter:
			if err := f.askFilter(); err != nil {
				return err
			}
		case pickPrev:
			f.page--
		case pickNext:
			f.page++
		case pickInfo:
		default:
			f.choose(choice)
		}
	}
}

func (f *FileSelector) cd(dir string) {
	f.dir = dir
	f.page = 0
}

func (f *FileSelector) askFilter() error {
	var filter string
	err := huh.NewInput().
		Title("Filter:").
		Value(&filter).
		Placeholder(f.filter).
		Run()
	if err != nil {
		return err
	}

	f.filter = strings.TrimSpace(filter)
	f.page = 0
	return nil
}

// choose toggles a file, or asks whether to enter a directory or pick the
// files directly inside it.
func (f *FileSelector) choose(path string) {
	stat, err := os.Stat(path)
	if err != nil {
		return
	}

	if !stat.IsDir() {
		if err := f.Toggle(path, stat); err != nil {
			fmt.Println(styles.WARNING.Render(fmt.Sprintf("%s: %v", path, err)))
		}
		return
	}

	var action string
	err = huh.NewSelect[string]().
		Title(fmt.Sprintf("Directory: %s", filepath.Base(path))).
		Options(
			huh.NewOption("Open", "open"),
			huh.NewOption("Pick every file", "all"),
			huh.NewOption("Back", "back"),
		).
		Value(&action).
		Run()
	if err != nil {
		return
	}

	switch action {
	case "open":
		f.cd(path)
	case "all":
		if skipped, err := f.SelectDir(path); err != nil {
			fmt.Println(styles.ERROR.Render(err.Error()))
		} else if len(skipped) > 0 {
			fmt.Println(styles.WARNING.Render(fmt.Sprintf("skipped %d files with names already picked", len(skipped))))
		}
	}
}

// Toggle picks path, or unpicks it if it is already picked.
func (f *FileSelector) Toggle(path string, stat os.FileInfo) error {
	name := filepath.Base(path)

	if p, ok := f.picks[name]; ok {
		if p.path != path {
			return fmt.Errorf("%w: %s", ErrNameTaken, p.path)
		}
		f.size -= p.info.Size()
		delete(f.picks, name)
		return nil
	}

	f.picks[name] = pick{path: path, info: stat}
	f.size += stat.Size()
	return nil
}

// SelectDir toggles the regular files directly inside dir. Offers carry bare
// names, so subdirectories are not descended into. Files whose name is
// already picked from elsewhere are returned.
func (f *FileSelector) SelectDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var skipped []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := f.Toggle(path, stat); err != nil {
			skipped = append(skipped, path)
		}
	}
	return skipped, nil
}

func (f *FileSelector) SelectedSize() int64 {
	return f.size
}

// Paths returns the picked files, sorted.
func (f *FileSelector) Paths() []string {
	paths := make([]string, 0, len(f.picks))
	for _, p := range f.picks {
		paths = append(paths, p.path)
	}
	sort.Strings(paths)
	return paths
}

func (f *FileSelector) ClearSelection() {
	f.picks = make(map[string]pick)
	f.size = 0
}
