package registry

// Buffer accumulates output chunks for one stream of a command. Chunks
// are concatenated in arrival order with no delimiter; chunk boundaries
// carry no meaning.
type Buffer struct {
	data []byte
	size int
}

// Append grows the buffer by exactly len(chunk) bytes.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.data = append(b.data, chunk...)
	b.size += len(chunk)
}

// Len returns the accumulated size in bytes.
func (b *Buffer) Len() int {
	return b.size
}

// Empty reports whether nothing has been accumulated.
func (b *Buffer) Empty() bool {
	return b.size == 0
}

// String returns the accumulated content.
func (b *Buffer) String() string {
	return string(b.data)
}

// Release drops the accumulated content.
func (b *Buffer) Release() {
	b.data = nil
	b.size = 0
}
