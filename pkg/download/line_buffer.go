package download

import "strings"

// LineBuffer reassembles streamed output into whole lines. Each Feed hands the
// complete lines received so far, without the trailing newline, to process in one
// call and keeps the unterminated remainder for the next chunk. Close flushes that
// remainder once; afterwards the buffer ignores input.
//
// A LineBuffer is not safe for concurrent use. It relies on the stream delivering
// chunks one at a time.
type LineBuffer struct {
	process func(text string)
	pending string
	closed  bool
}

func NewLineBuffer(process func(text string)) *LineBuffer {
	return &LineBuffer{process: process}
}

func (b *LineBuffer) Feed(chunk string) {
	if b.closed {
		return
	}

	text := b.pending + chunk
	b.pending = ""

	last := strings.LastIndexByte(text, '\n')
	if last < 0 {
		b.pending = text

		return
	}

	b.pending = text[last+1:]

	if complete := text[:last]; complete != "" {
		b.process(complete)
	}
}

func (b *LineBuffer) Close() {
	if b.closed {
		return
	}

	b.closed = true

	if b.pending == "" {
		return
	}

	remainder := b.pending
	b.pending = ""
	b.process(remainder)
}

// OnNext and OnClose let a LineBuffer observe an execution.OutputStream.
func (b *LineBuffer) OnNext(chunk string) { b.Feed(chunk) }
func (b *LineBuffer) OnClose()            { b.Close() }
