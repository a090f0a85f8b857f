// Package filesystem provides the directory producers: a one-shot crawler
// for corpus scans and an fsnotify watch for live arrivals. Hidden files
// and directories are skipped, as are the excluded roots (normally the
// taxonomy and quarantine trees the pipeline writes into).
package filesystem
