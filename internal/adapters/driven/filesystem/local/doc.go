// Package local implements the filesystem port on the host filesystem.
//
// Renames never replace an existing destination: the source is hard linked
// to the destination, which fails if the name is taken, and then unlinked.
// Filesystems without hard links fall back to an existence check followed
// by a plain rename.
package local
