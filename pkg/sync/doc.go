/*
The sync package implements foldersync's one-way mirroring algorithm. It
makes a replica directory tree match a source directory tree, and repeats
that on a fixed interval.

There are two pieces:
1) Reconcile -- Walks the source and replica trees side by side. Entries
   missing from the replica are copied, entries whose contents differ are
   recopied, and entries that only exist in the replica are deleted. Every
   decision is reported to an EventSink as an Event.
2) Loop -- Runs Reconcile once per interval until the context is cancelled
   or the source directory disappears. It creates the replica root if it's
   missing.

Files are compared by the hash of their contents rather than by size or
modification time, so metadata-only changes never trigger a copy, and content
changes that preserve the metadata are still detected.

Symbolic links are mirrored as links: they're recreated with the same target
and compared by target, and are never followed. This keeps the replica from
being written through a link into a directory outside of it.
*/
package sync
