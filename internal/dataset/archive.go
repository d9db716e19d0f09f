package dataset

import (
	"encoding/json"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

var (
	// ErrArchiveFailure wraps any failure to write or finalize an archive.
	ErrArchiveFailure = errors.New("archive failure")
	// ErrDuplicateEntry is returned when an entry name is added twice.
	ErrDuplicateEntry = errors.New("duplicate archive entry")
)

// Archive writes named JSON entries into a zip file at a fixed path.
type Archive struct {
	path  string
	file  *os.File
	zw    *zip.Writer
	names map[string]struct{}
	done  bool
}

// Create opens path for writing, truncating anything already there. The
// caller must Finalize or Close the returned archive.
func Create(path string) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(ErrArchiveFailure, "creating %s: %v", path, err)
	}
	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return &Archive{path: path, file: f, zw: zw, names: map[string]struct{}{}}, nil
}

// Path returns the destination file path.
func (a *Archive) Path() string { return a.path }

// AddJSON marshals payload and stores it under name.
func (a *Archive) AddJSON(name string, payload any) error {
	if a.done {
		return errors.Wrapf(ErrArchiveFailure, "adding %s: archive already finalized", name)
	}
	if name == "" {
		return errors.Wrap(ErrArchiveFailure, "entry name is empty")
	}
	if _, dup := a.names[name]; dup {
		return errors.Wrap(ErrDuplicateEntry, name)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.Wrapf(ErrArchiveFailure, "encoding %s: %v", name, err)
	}

	w, err := a.zw.Create(name)
	if err != nil {
		return errors.Wrapf(ErrArchiveFailure, "creating entry %s: %v", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(ErrArchiveFailure, "writing entry %s: %v", name, err)
	}
	a.names[name] = struct{}{}
	return nil
}

// Finalize writes the zip central directory, flushes the file to disk and
// releases the handle. The archive is complete only if Finalize succeeds.
func (a *Archive) Finalize() error {
	if a.done {
		return errors.Wrap(ErrArchiveFailure, "archive already finalized")
	}
	a.done = true

	if err := a.zw.Close(); err != nil {
		a.file.Close()
		return errors.Wrapf(ErrArchiveFailure, "closing zip writer: %v", err)
	}
	if err := a.file.Sync(); err != nil {
		a.file.Close()
		return errors.Wrapf(ErrArchiveFailure, "syncing %s: %v", a.path, err)
	}
	if err := a.file.Close(); err != nil {
		return errors.Wrapf(ErrArchiveFailure, "closing %s: %v", a.path, err)
	}
	return nil
}

// Close releases the file handle without finalizing. It is safe to call
// after Finalize and more than once.
func (a *Archive) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	return a.file.Close()
}

// Build is the scoped form of Create: it runs fill against a fresh archive at
// path and finalizes it. The file handle is released on every path, and on
// any error the destination file is removed before the error is returned.
func Build(path string, fill func(*Archive) error) (err error) {
	a, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		a.Close()
		if err != nil {
			Remove(path)
		}
	}()

	if err = fill(a); err != nil {
		return err
	}
	return a.Finalize()
}

// Remove deletes path, treating an already missing file as success.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
