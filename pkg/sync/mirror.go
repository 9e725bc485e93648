package sync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

// Variables mocked for unit testing.
var (
	copyFile = copyFileImpl
	copyTree = copyTreeImpl
	copyLink = copyLinkImpl
)

type entryKind int

const (
	kindOther entryKind = iota
	kindFile
	kindDir
	kindSymlink
)

func (kind entryKind) String() string {
	switch kind {
	case kindFile:
		return "file"
	case kindDir:
		return "directory"
	case kindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// kindOf classifies the result of an Lstat.
func kindOf(fi os.FileInfo) entryKind {
	mode := fi.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return kindSymlink
	case mode.IsDir():
		return kindDir
	case mode.IsRegular():
		return kindFile
	default:
		return kindOther
	}
}

// mirrorEntry copies the entry at `src` to `dst`, which must not exist.
func mirrorEntry(kind entryKind, src, dst string) error {
	switch kind {
	case kindDir:
		return copyTree(src, dst)
	case kindFile:
		return copyFile(src, dst)
	case kindSymlink:
		return copyLink(src, dst)
	default:
		return errors.New("unsupported file type")
	}
}

// copyFileImpl copies the contents, mode, and modification time of `src` to
// `dst`. Anything that already exists at `dst` is removed first, so that
// read-only files are replaced and symlinks aren't written through.
func copyFileImpl(src, dst string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	if err := fs.Remove(dst); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(err, "remove old destination")
	}

	dstFile, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileInfo.Mode().Perm())
	if err != nil {
		return errors.WithContext(err, "open destination")
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return errors.WithContext(err, "copy")
	}

	if err := dstFile.Close(); err != nil {
		return errors.WithContext(err, "close destination")
	}

	// The umask may have stripped bits when the file was created.
	if err := fs.Chmod(dst, fileInfo.Mode()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(dst, time.Now(), fileInfo.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}
	return nil
}

// copyLinkImpl recreates the symlink at `src` at `dst`, pointing at the same
// target.
func copyLinkImpl(src, dst string) error {
	target, err := readlink(src)
	if err != nil {
		return errors.WithContext(err, "read link")
	}

	if err := fs.Remove(dst); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(err, "remove old destination")
	}

	if err := symlink(target, dst); err != nil {
		return errors.WithContext(err, "create link")
	}
	return nil
}

// copyTreeImpl copies the directory `src` and everything beneath it to
// `dst`. Symlinks are copied as links rather than followed.
func copyTreeImpl(src, dst string) error {
	var dirs []string
	err := afero.Walk(fs, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relativePath, err := filepath.Rel(src, path)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}
		target := filepath.Join(dst, relativePath)

		switch kind := kindOf(fi); kind {
		case kindDir:
			// Create directories writable so that their contents can be
			// copied. The real mode is applied once the walk is done.
			if err := fs.MkdirAll(target, 0755); err != nil {
				return errors.WithContext(err, fmt.Sprintf("make directory %q", target))
			}
			dirs = append(dirs, relativePath)
		case kindFile:
			if err := copyFile(path, target); err != nil {
				return errors.WithContext(err, fmt.Sprintf("copy %q", path))
			}
		case kindSymlink:
			if err := copyLink(path, target); err != nil {
				return errors.WithContext(err, fmt.Sprintf("copy link %q", path))
			}
		default:
			return errors.WithContext(errors.New("unsupported file type %s", fi.Mode().Type()), path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Children are written before their parents are finalized, so that
	// creating them doesn't bump the parents' modification times.
	for i := len(dirs) - 1; i >= 0; i-- {
		srcDir := filepath.Join(src, dirs[i])
		dstDir := filepath.Join(dst, dirs[i])

		fi, err := fs.Stat(srcDir)
		if err != nil {
			return errors.WithContext(err, "stat")
		}

		if err := fs.Chmod(dstDir, fi.Mode().Perm()); err != nil {
			return errors.WithContext(err, "set directory mode")
		}

		if err := fs.Chtimes(dstDir, time.Now(), fi.ModTime()); err != nil {
			return errors.WithContext(err, "set directory modtime")
		}
	}
	return nil
}

func readlink(path string) (string, error) {
	reader, ok := fs.(afero.LinkReader)
	if !ok {
		return "", errors.New("filesystem doesn't support symlinks")
	}
	return reader.ReadlinkIfPossible(path)
}

func symlink(target, path string) error {
	linker, ok := fs.(afero.Linker)
	if !ok {
		return errors.New("filesystem doesn't support symlinks")
	}
	return linker.SymlinkIfPossible(target, path)
}
