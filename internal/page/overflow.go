package page

import (
	"encoding/binary"

	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
)

// PageReader fetches the raw bytes of a page by 1-based page number. It is
// supplied by the pager/buffer-pool layer that consumes this codec; this
// package never owns page I/O.
type PageReader func(pageNumber uint32) ([]byte, error)

// ReadOverflowChain walks the singly linked overflow chain starting at
// first, appending each page's payload bytes (everything after its leading
// 4-byte next-page pointer) until totalRemaining bytes have been collected
// or the chain terminates (next == 0).
func ReadOverflowChain(read PageReader, first uint32, totalRemaining int) ([]byte, error) {
	out := make([]byte, 0, totalRemaining)
	page := first
	for totalRemaining > 0 {
		if page == 0 {
			return nil, corrupt.New("overflow chain terminated with %d bytes still unread", totalRemaining)
		}
		buf, err := read(page)
		if err != nil {
			return nil, err
		}
		if len(buf) < 4 {
			return nil, corrupt.New("overflow page %d too small for next-page pointer", page)
		}
		next := binary.BigEndian.Uint32(buf[0:4])
		avail := len(buf) - 4
		take := avail
		if take > totalRemaining {
			take = totalRemaining
		}
		out = append(out, buf[4:4+take]...)
		totalRemaining -= take
		page = next
	}
	return out, nil
}

// WriteOverflowChain splits data across a chain of page-sized buffers
// (usable = len(pageBuf)-4 bytes of payload each), writing the next-page
// pointer nextPage(i) into the front of each. It returns the filled page
// buffers in chain order; the caller (pager) is responsible for allocating
// page numbers and persisting them.
func WriteOverflowChain(data []byte, pageSize int, nextPage func(i int) uint32) [][]byte {
	if pageSize <= 4 {
		return nil
	}
	perPage := pageSize - 4
	n := (len(data) + perPage - 1) / perPage
	if n == 0 {
		return nil
	}
	pages := make([][]byte, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, pageSize)
		binary.BigEndian.PutUint32(buf[0:4], nextPage(i))
		start := i * perPage
		end := start + perPage
		if end > len(data) {
			end = len(data)
		}
		copy(buf[4:], data[start:end])
		pages[i] = buf
	}
	return pages
}
