// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/devblok/vkframe/utility/kar"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

func init() {
	currentUserName = "unknown"
	if u, err := user.Current(); err == nil && u.Name != "" {
		currentUserName = u.Name
	}
}

var (
	currentUserName string
	author          = flag.String("author", "", "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the file given")
	compress        = flag.String("c", "", "Compress the given file/folder")
	list            = flag.String("l", "", "List the contents of the file given")
	dstFile         = flag.String("f", "out.kar", "Destination file")
	outDir          = flag.String("o", ".", "Directory to extract into")
	silent          = flag.Bool("s", false, "Silent")
)

var log = logrus.New()

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(logrus.ErrorLevel)
	}

	var ops int
	for _, op := range []string{*extract, *compress, *list} {
		if op != "" {
			ops++
		}
	}
	if ops > 1 {
		log.Fatal("only one operation at a time")
	}

	var err error
	switch {
	case *extract != "":
		err = extractFiles(*extract, *outDir)
	case *compress != "":
		name := *author
		if name == "" {
			name = currentUserName
		}
		err = compressFiles(*compress, *dstFile, kar.Header{
			Author:      name,
			DateCreated: time.Now().Unix(),
			Version:     *version,
		})
	case *list != "":
		err = listFiles(*list, os.Stdout)
	default:
		flag.PrintDefaults()
	}
	if err != nil {
		log.WithError(err).Fatal("kar")
	}
}

// compressFiles archives every file under src, named by its slash separated
// path relative to src.
func compressFiles(src, dst string, header kar.Header) error {
	if _, err := os.Stat(dst); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	root := src
	if info, err := os.Stat(src); err != nil {
		return err
	} else if !info.IsDir() {
		root = filepath.Dir(src)
	}

	var filesToCompress []string
	if err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		filesToCompress = append(filesToCompress, path)
		return nil
	}); err != nil {
		return err
	}

	karBuilder, err := kar.NewBuilder(header)
	if err != nil {
		return err
	}
	defer karBuilder.Close()

	var g errgroup.Group
	for _, ftc := range filesToCompress {
		ftc := ftc
		g.Go(func() error {
			rel, err := filepath.Rel(root, ftc)
			if err != nil {
				return err
			}
			f, err := os.Open(ftc)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := karBuilder.Add(filepath.ToSlash(rel), f); err != nil {
				return err
			}
			log.WithField("file", rel).Debug("added")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	written, err := karBuilder.WriteTo(out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return err
	}
	log.WithFields(logrus.Fields{
		"archive": dst,
		"files":   karBuilder.Len(),
		"bytes":   written,
	}).Info("archive written")
	return nil
}

func openArchive(path string) (*mmap.ReaderAt, *kar.Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, nil, errors.Wrap(err, path)
	}
	return r, ar, nil
}

// extractFiles writes every file in the archive below dir.
func extractFiles(archive, dir string) error {
	r, ar, err := openArchive(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, name := range ar.Names() {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if rel, err := filepath.Rel(dir, target); err != nil || strings.HasPrefix(rel, "..") {
			return errors.Errorf("%s: path escapes destination", name)
		}
		if err := extractFile(ar, name, target); err != nil {
			return err
		}
		log.WithField("file", name).Debug("extracted")
	}
	log.WithFields(logrus.Fields{
		"archive": archive,
		"files":   len(ar.Names()),
	}).Info("archive extracted")
	return nil
}

func extractFile(ar *kar.Archive, name, target string) error {
	src, err := ar.Open(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrapf(err, "extract %s", name)
	}
	return dst.Close()
}

// listFiles prints the archive header and its index.
func listFiles(archive string, w io.Writer) error {
	r, ar, err := openArchive(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	header := ar.Header()
	fmt.Fprintf(w, "%s: version %d by %s, created %s\n", archive, header.Version, header.Author,
		time.Unix(header.DateCreated, 0).UTC().Format(time.RFC3339))
	for _, name := range ar.Names() {
		e, err := ar.Stat(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%10d %10d %s\n", e.Size, e.CompressedSize, name)
	}
	return nil
}
