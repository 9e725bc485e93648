package sync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

type reconciler struct {
	source, replica string
	sink            EventSink
	summary         Summary
}

// Reconcile makes the directory `replica` identical to the directory
// `source`. Both directories must already exist.
//
// Entries that are missing from the replica are copied, files whose contents
// differ are recopied, and entries that only exist in the replica are
// removed. The replica entries to remove are collected while walking the
// trees, and only removed once every copy has been made. So, all of the
// Created, UpToDate, and Updated events are emitted before any Deleted
// events.
//
// Failing to synchronize one entry doesn't stop the others from being
// synchronized. An Error event is emitted for the entry instead, and nothing
// is copied or removed for it.
func Reconcile(source, replica string, sink EventSink) Summary {
	r := reconciler{source: source, replica: replica, sink: sink}

	// Walk the trees with an explicit stack rather than recursion so that
	// deeply nested trees don't grow the goroutine stack.
	var toRemove []string
	pending := []string{"."}
	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		subdirs, extra := r.reconcileDir(dir)
		toRemove = append(toRemove, extra...)

		// Push in reverse so that subdirectories are visited in name order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			pending = append(pending, subdirs[i])
		}
	}

	for _, path := range toRemove {
		r.remove(path)
	}
	return r.summary
}

// reconcileDir synchronizes the immediate children of `dir`. It returns the
// subdirectories that exist on both sides and still need to be walked, and
// the replica entries that don't exist in the source.
func (r *reconciler) reconcileDir(dir string) (subdirs, toRemove []string) {
	srcEntries, err := afero.ReadDir(fs, filepath.Join(r.source, dir))
	if err != nil {
		r.emit(Error, dir, errors.WithContext(err, "list source"))
		return nil, nil
	}

	replicaEntries, err := afero.ReadDir(fs, filepath.Join(r.replica, dir))
	if err != nil {
		r.emit(Error, dir, errors.WithContext(err, "list replica"))
		return nil, nil
	}

	inReplica := map[string]os.FileInfo{}
	for _, fi := range replicaEntries {
		inReplica[fi.Name()] = fi
	}

	inSource := map[string]struct{}{}
	for _, srcInfo := range srcEntries {
		name := srcInfo.Name()
		inSource[name] = struct{}{}

		path := filepath.Join(dir, name)
		if r.reconcileEntry(path, srcInfo, inReplica[name]) {
			subdirs = append(subdirs, path)
		}
	}

	for _, fi := range replicaEntries {
		if _, ok := inSource[fi.Name()]; !ok {
			toRemove = append(toRemove, filepath.Join(dir, fi.Name()))
		}
	}
	return subdirs, toRemove
}

// reconcileEntry synchronizes a single entry. `replicaInfo` is nil if the
// entry doesn't exist in the replica. It returns true if the entry is a
// directory on both sides, and so its children need to be reconciled.
func (r *reconciler) reconcileEntry(path string, srcInfo, replicaInfo os.FileInfo) bool {
	srcKind := kindOf(srcInfo)
	if srcKind == kindOther {
		r.emit(Error, path, errors.New("unsupported file type %s", srcInfo.Mode().Type()))
		return false
	}

	if replicaInfo == nil {
		r.mirror(path, srcKind, Created)
		return false
	}

	// The path exists on both sides, but as different kinds of entries,
	// e.g. a file in the source and a directory in the replica. Replace the
	// replica entry wholesale.
	if replicaKind := kindOf(replicaInfo); replicaKind != srcKind {
		if err := fs.RemoveAll(filepath.Join(r.replica, path)); err != nil {
			r.emit(Error, path, errors.WithContext(err,
				fmt.Sprintf("remove %s to replace it with a %s", replicaKind, srcKind)))
			return false
		}
		r.mirror(path, srcKind, Updated)
		return false
	}

	switch srcKind {
	case kindDir:
		return true
	case kindFile:
		r.compareFiles(path)
	case kindSymlink:
		r.compareLinks(path)
	}
	return false
}

// mirror copies the entry at `path` from the source to the replica, and emits
// `kind` if it succeeds.
func (r *reconciler) mirror(path string, srcKind entryKind, kind EventKind) {
	src, dst := r.paths(path)
	if err := mirrorEntry(srcKind, src, dst); err != nil {
		r.emit(Error, path, errors.WithContext(err, fmt.Sprintf("copy %s", srcKind)))
		return
	}
	r.emit(kind, path, nil)
}

func (r *reconciler) compareFiles(path string) {
	src, dst := r.paths(path)

	// If either file can't be read, we can't tell whether they differ.
	// Skip the file rather than risk overwriting a good copy.
	srcHash, err := hashFile(src)
	if err != nil {
		r.emit(Error, path, errors.WithContext(err, "hash source"))
		return
	}

	dstHash, err := hashFile(dst)
	if err != nil {
		r.emit(Error, path, errors.WithContext(err, "hash replica"))
		return
	}

	if srcHash == dstHash {
		r.emit(UpToDate, path, nil)
		return
	}
	r.mirror(path, kindFile, Updated)
}

func (r *reconciler) compareLinks(path string) {
	src, dst := r.paths(path)

	srcTarget, err := readlink(src)
	if err != nil {
		r.emit(Error, path, errors.WithContext(err, "read source link"))
		return
	}

	dstTarget, err := readlink(dst)
	if err != nil {
		r.emit(Error, path, errors.WithContext(err, "read replica link"))
		return
	}

	if srcTarget == dstTarget {
		r.emit(UpToDate, path, nil)
		return
	}
	r.mirror(path, kindSymlink, Updated)
}

func (r *reconciler) remove(path string) {
	// RemoveAll doesn't follow symlinks, so a link to a directory outside of
	// the replica is removed without touching its target.
	if err := fs.RemoveAll(filepath.Join(r.replica, path)); err != nil {
		r.emit(Error, path, errors.WithContext(err, "remove"))
		return
	}
	r.emit(Deleted, path, nil)
}

func (r *reconciler) paths(path string) (src, dst string) {
	return filepath.Join(r.source, path), filepath.Join(r.replica, path)
}

func (r *reconciler) emit(kind EventKind, path string, err error) {
	r.summary.add(kind)
	r.sink.Handle(Event{Kind: kind, Path: path, Err: err})
}
