package protocol

import "fmt"

// Buffer is a fixed-capacity byte arena with separate read and write cursors.
// Bytes in [r, w) are readable; [w, cap) is free. It never grows.
type Buffer struct {
	data []byte
	r, w int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("protocol: invalid buffer capacity %d", capacity))
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Bytes returns the readable region. It is only valid until the next mutation.
func (b *Buffer) Bytes() []byte {
	return b.data[b.r:b.w]
}

func (b *Buffer) Len() int {
	return b.w - b.r
}

func (b *Buffer) Cap() int {
	return len(b.data)
}

// Free returns the writable region after the write cursor.
func (b *Buffer) Free() []byte {
	return b.data[b.w:]
}

func (b *Buffer) Available() int {
	return len(b.data) - b.w
}

// Commit marks n bytes of Free() as written.
func (b *Buffer) Commit(n int) {
	if n < 0 || n > b.Available() {
		panic(fmt.Sprintf("protocol: commit %d exceeds free space %d", n, b.Available()))
	}
	b.w += n
}

// Consume advances the read cursor. Draining the buffer rewinds both cursors.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic(fmt.Sprintf("protocol: consume %d exceeds readable %d", n, b.Len()))
	}
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
	}
}

// Compact moves unread bytes to the front so Free() is as large as possible.
func (b *Buffer) Compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.data, b.data[b.r:b.w])
	b.r, b.w = 0, n
}

func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}
