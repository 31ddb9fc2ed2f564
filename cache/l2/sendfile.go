package l2

import (
	"bytes"
	"io"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/omalloc/tavern/cache/cachekey"
)

// Transfer writes key's body to dst, using unix.Sendfile for a direct
// kernel-space copy from the backing file to dst's socket when dst
// exposes a raw file descriptor (syscall.Conn, as satisfied by
// *net.TCPConn and similar), and falling back to a buffered io.Copy via
// View/Lookup otherwise — degrading gracefully rather than failing.
//
// Grounded on ricardobranco777-httpseek/mmapcache.go's zero-copy read
// path, extended from mmap-backed reads to a direct-to-socket transfer.
func (t *Tier) Transfer(dst io.Writer, key cachekey.Key) (int64, error) {
	if conn, ok := dst.(syscall.Conn); ok {
		if n, ok, err := t.sendfile(conn, key); ok {
			return n, err
		}
	}
	return t.copyFallback(dst, key)
}

func (t *Tier) sendfile(conn syscall.Conn, key cachekey.Key) (n int64, handled bool, err error) {
	view, ok := t.View(key)
	if !ok {
		return 0, false, nil
	}
	defer view.Release()

	t.mu.RLock()
	entry, ok := t.live[key]
	t.mu.RUnlock()
	if !ok || len(entry.blocks) != 1 {
		return 0, false, nil
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, false, nil
	}

	offset := t.BlockOffset(entry.blocks[0])
	remaining := entry.size
	var sendErr error

	ctrlErr := raw.Control(func(fd uintptr) {
		for remaining > 0 {
			sent, werr := unix.Sendfile(int(fd), t.file.fd(), &offset, int(remaining))
			if sent > 0 {
				n += int64(sent)
				remaining -= int64(sent)
			}
			if werr != nil {
				if werr == unix.EAGAIN || werr == unix.EINTR {
					continue
				}
				sendErr = werr
				return
			}
			if sent == 0 {
				return
			}
		}
	})
	if ctrlErr != nil {
		return n, true, ctrlErr
	}
	return n, true, sendErr
}

func (t *Tier) copyFallback(dst io.Writer, key cachekey.Key) (int64, error) {
	body, ok := t.Lookup(key)
	if !ok {
		return 0, io.ErrUnexpectedEOF
	}
	return io.Copy(dst, bytes.NewReader(body))
}
