// Package tree provides the resource tree that locks are taken on.
//
// ITree is implemented on top of an afero.Fs: NewMemTree keeps all resources
// in memory, NewDirTree serves a directory of the local file system. Entity
// tags are derived from modification time and size.
package tree
