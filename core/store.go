package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Save writes the download into dir and returns the path written. An
// existing file is never overwritten; "name (n).ext" is used instead. On
// failure the partial file is left in place and the path is still returned.
func Save(dir string, name string, src io.Reader) (string, int64, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", 0, fmt.Errorf("%w: unsafe file name %q", ErrInvalidField, name)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, storageFailure(src, 0, err)
	}

	file, path, err := createUnique(dir, name)
	if err != nil {
		return "", 0, storageFailure(src, 0, err)
	}

	n, err := io.Copy(&storageWriter{w: file}, src)
	closeErr := file.Close()

	var se storageErr
	switch {
	case errors.As(err, &se):
		return path, n, storageFailure(src, n, se.err)
	case err != nil:
		return path, n, err
	case closeErr != nil:
		return path, n, storageFailure(src, n, closeErr)
	}

	return path, n, nil
}

// storageFailure ends a download that can no longer be written.
func storageFailure(src io.Reader, n int64, err error) error {
	if d, ok := src.(*Download); ok {
		d.abort(ReasonStorageError, err)
	}
	return &TransferError{Reason: ReasonStorageError, Received: n, Err: err}
}

func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
	}
}

// storageWriter tags write errors so Save can tell them from read errors.
type storageWriter struct {
	w io.Writer
}

type storageErr struct {
	err error
}

func (e storageErr) Error() string { return e.err.Error() }
func (e storageErr) Unwrap() error { return e.err }

func (sw *storageWriter) Write(p []byte) (int, error) {
	n, err := sw.w.Write(p)
	if err != nil {
		return n, storageErr{err}
	}
	return n, nil
}
