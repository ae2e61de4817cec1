// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fswatch implements a recursive inotify-based watcher over the
// raw resource root, generalized from the single-filename watch used
// elsewhere in this codebase to "watch an entire tree, add watches for
// newly created subdirectories, emit a path for every modification".
//
// The underlying inotify read loop runs in its own goroutine and only
// ever touches a buffered, lock-free channel; [Watcher.Tick] drains it
// non-blockingly from the Dispatcher's single-threaded tick, preserving
// the guarantee that nothing outside this package touches inotify state
// concurrently with the Dispatcher.
package fswatch

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// watchMask covers the file events the dispatcher treats as "a source
// changed": a direct write, a file closed after being opened for
// writing (the common save pattern for editors), and a file moved into
// the tree (e.g., an atomic rename-based save). IN_CREATE is included
// only so that newly created subdirectories get watches of their own;
// the creation of a plain file is not reported.
const watchMask = unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_CREATE

// eventQueueCapacity bounds how many pending paths the read loop can
// buffer before it starts blocking on a slow Tick consumer. Generous
// relative to the burst a single file save can produce.
const eventQueueCapacity = 1024

// Watcher watches a directory tree rooted at Root for modifications,
// recursively adding watches to subdirectories as they are discovered
// (at startup, and as IN_CREATE events for directories arrive).
type Watcher struct {
	root string

	fd        int
	watchDirs map[int32]string // watch descriptor -> absolute directory path
	events    chan string
	stopCh    chan struct{}
	cleanedUp bool
}

// New starts watching root (recursively) for file modifications.
func New(root string) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}

	w := &Watcher{
		root:      root,
		fd:        fd,
		watchDirs: make(map[int32]string),
		events:    make(chan string, eventQueueCapacity),
		stopCh:    make(chan struct{}),
	}

	if err := w.addWatchRecursive(root); err != nil {
		unix.Close(fd)
		return nil, err
	}

	go w.readLoop()

	return w, nil
}

// addWatchRecursive adds an inotify watch on dir and every subdirectory
// beneath it.
func (w *Watcher) addWatchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		wd, err := unix.InotifyAddWatch(w.fd, path, watchMask)
		if err != nil {
			return fmt.Errorf("inotify_add_watch on %s: %w", path, err)
		}
		w.watchDirs[int32(wd)] = path
		return nil
	})
}

// Tick drains every path observed since the last call, non-blocking.
// Paths are absolute.
func (w *Watcher) Tick() []string {
	var paths []string
	for {
		select {
		case path := <-w.events:
			paths = append(paths, path)
		default:
			return paths
		}
	}
}

// Close stops the watcher and releases the inotify file descriptor.
// Safe to call multiple times.
func (w *Watcher) Close() {
	if w.cleanedUp {
		return
	}
	w.cleanedUp = true
	close(w.stopCh)
}

// readLoop polls the inotify fd for events, translating them into
// absolute paths pushed onto w.events. Uses poll(2) with a 100ms
// timeout so the goroutine remains responsive to Close without burning
// CPU on a tight loop.
func (w *Watcher) readLoop() {
	defer unix.Close(w.fd)

	buffer := make([]byte, 64*1024)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}

		bytesRead, err := unix.Read(w.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}

		w.handleEvents(buffer[:bytesRead])
	}
}

// handleEvents parses a buffer of raw inotify events (layout per
// inotify(7): int32 wd, uint32 mask, uint32 cookie, uint32 len,
// char name[]) and either pushes a modified-file path or, for a
// directory creation, installs a new recursive watch.
func (w *Watcher) handleEvents(buffer []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		wd := int32(binary.NativeEndian.Uint32(buffer[offset : offset+4]))
		mask := binary.NativeEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		dir, known := w.watchDirs[wd]
		if known && nameLength > 0 {
			name := nullTerminatedString(buffer[offset+unix.SizeofInotifyEvent : offset+eventSize])
			path := filepath.Join(dir, name)

			if mask&unix.IN_ISDIR != 0 && mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
				// A new subdirectory appeared; recurse into it so
				// files saved there are watched too.
				_ = w.addWatchRecursive(path)
			} else if mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0 {
				select {
				case w.events <- path:
				default:
					// Queue full: drop rather than block the read
					// loop. A dropped event means a stale compile
					// until the next save retriggers it.
				}
			}
		}

		offset += eventSize
	}
}

func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
