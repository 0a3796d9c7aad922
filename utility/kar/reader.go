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
	"sort"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// Open opens the kar archived from r. It will also check
// if the file is actually a kar archive, will return an error
// when file incorrect.
func Open(r io.ReaderAt) (*Archive, error) {
	magic := make([]byte, MagicLength)
	if num, err := r.ReadAt(magic, 0); num < MagicLength || !bytes.Equal(magic, Magic[:]) {
		return nil, ErrFileFormat
	} else if err != nil && err != io.EOF {
		return nil, err
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if num, err := r.ReadAt(headerSizeBytes, MagicLength); num < HeaderSizeNumberLength {
		return nil, ErrFileFormat
	} else if err != nil && err != io.EOF {
		return nil, err
	}

	headerSize, err := binaryToint64(headerSizeBytes)
	if err != nil || headerSize <= 0 {
		return nil, ErrFileFormat
	}

	if size, ok := readerSize(r); ok && headerSize > size-MagicLength-HeaderSizeNumberLength {
		return nil, ErrFileFormat
	}

	// grows with the data actually present, whatever size was declared
	headerBytes, err := ioutil.ReadAll(io.NewSectionReader(r, MagicLength+HeaderSizeNumberLength, headerSize))
	if err != nil {
		return nil, err
	}
	if int64(len(headerBytes)) < headerSize {
		return nil, ErrFileFormat
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}

	ar := &Archive{
		reader:     r,
		header:     header,
		dataOffset: MagicLength + HeaderSizeNumberLength + headerSize,
		entries:    make(map[string]IndexEntry, len(header.Index)),
	}
	for _, e := range header.Index {
		ar.entries[e.Name] = e
	}
	return ar, nil
}

// readerSize reports the readable size of readers that know it, such as
// *bytes.Reader, *io.SectionReader, *mmap.ReaderAt and *os.File.
func readerSize(r io.ReaderAt) (int64, bool) {
	switch sized := r.(type) {
	case interface{ Size() int64 }:
		return sized.Size(), true
	case interface{ Len() int }:
		return int64(sized.Len()), true
	case interface{ Stat() (os.FileInfo, error) }:
		if info, err := sized.Stat(); err == nil {
			return info.Size(), true
		}
	}
	return 0, false
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader     io.ReaderAt
	header     Header
	dataOffset int64
	entries    map[string]IndexEntry
}

// Header returns the archive header including the index.
func (a *Archive) Header() Header {
	return a.header
}

// Names returns the sorted names of all files in the archive.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.entries))
	for n := range a.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Stat returns the index entry of a file.
func (a *Archive) Stat(name string) (IndexEntry, error) {
	e, ok := a.entries[name]
	if !ok {
		return IndexEntry{}, errors.Wrap(ErrNotFound, name)
	}
	return e, nil
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", name)
	}
	if int64(len(data)) != r.Size() {
		return nil, errors.Wrapf(ErrFileFormat, "%s: %d of %d bytes", name, len(data), r.Size())
	}
	return data, nil
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	e, err := a.Stat(name)
	if err != nil {
		return nil, err
	}
	section := io.NewSectionReader(a.reader, a.dataOffset+e.Offset, e.CompressedSize)
	return &Reader{
		entry:  e,
		reader: lz4.NewReader(section),
	}, nil
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry  IndexEntry
	reader io.Reader
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}

// Name returns the name of the file in the archive.
func (r *Reader) Name() string {
	return r.entry.Name
}

// Size returns the decompressed size of the file.
func (r *Reader) Size() int64 {
	return r.entry.Size
}
