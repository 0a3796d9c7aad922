// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway. The Builder has to be
// closed to remove its temporary files.
func NewBuilder(header Header) (*Builder, error) {
	temp, err := ioutil.TempDir("", "karBuilder")
	if err != nil {
		return nil, errors.Wrap(ErrTempFail, err.Error())
	}
	return &Builder{
		tempDir: temp,
		header:  header,
		names:   make(map[string]bool),
	}, nil
}

type tempFile struct {

	// Name is the actual name of the file
	Name string

	// Path is the temporary file holding the compressed data
	Path string

	// Size in uncompressed state
	Size int64

	Compressed int64
}

// Builder is the high level builder for the archive format.
// Arhives are versioned and cannot be appended to, This Builder
// is the way to create an archive. Whenever Add is called, the Builder
// stores the compressed file in a temporary dir, finally bundling
// them togeter and writing them out with WriteTo.
type Builder struct {
	tempDir string
	header  Header

	mutex sync.Mutex
	files []tempFile
	names map[string]bool
}

var _ io.WriterTo = (*Builder)(nil)

// Add appends data read from r to the builder with a given name.
// Will block until lz4 finishes compression. Is safe
// to use concurrently in different goroutines.
func (b *Builder) Add(name string, r io.Reader) error {
	b.mutex.Lock()
	if b.names[name] {
		b.mutex.Unlock()
		return errors.Wrap(ErrDuplicate, name)
	}
	b.names[name] = true
	b.mutex.Unlock()

	f, err := ioutil.TempFile(b.tempDir, "entry")
	if err != nil {
		b.forget(name)
		return errors.Wrap(ErrTempFail, err.Error())
	}
	defer f.Close()

	writer := lz4.NewWriter(f)
	written, err := io.Copy(writer, r)
	if err != nil {
		b.forget(name)
		return errors.Wrapf(err, "compress %s", name)
	}
	if err := writer.Close(); err != nil {
		b.forget(name)
		return errors.Wrapf(err, "compress %s", name)
	}
	info, err := f.Stat()
	if err != nil {
		b.forget(name)
		return errors.Wrap(ErrTempFail, err.Error())
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, tempFile{
		Name:       name,
		Path:       f.Name(),
		Size:       written,
		Compressed: info.Size(),
	})
	return nil
}

func (b *Builder) forget(name string) {
	b.mutex.Lock()
	delete(b.names, name)
	b.mutex.Unlock()
}

// Len returns the number of files added so far.
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.files)
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	header := b.header
	header.Index = make([]IndexEntry, 0, len(b.files))
	var offset int64
	for _, v := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           v.Name,
			Size:           v.Size,
			CompressedSize: v.Compressed,
			Offset:         offset,
		})
		offset += v.Compressed
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, errors.Wrap(err, "encode header")
	}

	var prefix bytes.Buffer
	prefix.Write(Magic[:])
	prefix.Write(int64ToBinary(int64(len(rawHeader))))
	prefix.Write(rawHeader)

	total, err := prefix.WriteTo(w)
	if err != nil {
		return total, err
	}
	for _, v := range b.files {
		n, err := copyFile(w, v.Path)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "write %s", v.Name)
		}
	}
	return total, nil
}

func copyFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Close removes the temporary files. The Builder is unusable afterwards.
func (b *Builder) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = nil
	return os.RemoveAll(b.tempDir)
}
