// Package framing splits a continuous byte stream into delimited messages.
//
// A Framer keeps the bytes that follow the last delimiter it found and
// carries them into the next Feed, so a delimiter split across two chunks is
// still detected. Scanning resumes where the previous Feed stopped, which
// keeps the total work linear in the number of bytes received.
package framing

import "bytes"

// shrinkThreshold is the buffer capacity above which an emptied buffer is
// released instead of reused.
const shrinkThreshold = 64 * 1024

// Framer is the per-connection splitter. It is not safe for concurrent use.
type Framer struct {
	delim []byte
	buf   []byte
	// scan is the offset in buf where the next delimiter search starts.
	// Every byte before it is known not to begin a delimiter.
	scan int
}

// New returns a framer that splits on delimiter. It panics if delimiter is
// empty.
func New(delimiter []byte) *Framer {
	if len(delimiter) == 0 {
		panic("framing: empty delimiter")
	}
	return &Framer{delim: bytes.Clone(delimiter)}
}

// Delimiter returns the delimiter the framer splits on.
func (f *Framer) Delimiter() []byte {
	return f.delim
}

// Feed appends chunk to the buffer and returns every complete message, in
// the order the delimiters appear. Messages exclude the delimiter and do not
// alias the framer's buffer. Bytes after the last delimiter stay buffered.
func (f *Framer) Feed(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	f.buf = append(f.buf, chunk...)

	var msgs [][]byte
	start := 0
	for {
		i := bytes.Index(f.buf[f.scan:], f.delim)
		if i < 0 {
			break
		}
		end := f.scan + i
		msgs = append(msgs, bytes.Clone(f.buf[start:end]))
		start = end + len(f.delim)
		f.scan = start
	}

	// A delimiter prefix may sit at the tail; rescan only that much next time.
	if tail := len(f.buf) - len(f.delim) + 1; tail > f.scan {
		f.scan = tail
	}

	if start > 0 {
		f.compact(start)
	}
	return msgs
}

// compact drops the first n bytes of the buffer.
func (f *Framer) compact(n int) {
	rest := len(f.buf) - n
	if rest == 0 && cap(f.buf) > shrinkThreshold {
		f.buf = nil
	} else {
		f.buf = f.buf[:copy(f.buf, f.buf[n:])]
	}
	f.scan -= n
	if f.scan < 0 {
		f.scan = 0
	}
}

// Buffered returns the number of bytes waiting for a delimiter.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Pending returns a copy of the bytes waiting for a delimiter.
func (f *Framer) Pending() []byte {
	return bytes.Clone(f.buf)
}

// Reset discards any buffered partial message.
func (f *Framer) Reset() {
	f.buf = nil
	f.scan = 0
}
