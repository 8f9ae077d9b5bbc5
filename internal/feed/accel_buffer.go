package feed

// DefaultAccelBufferSize is the rolling accelerometer history length.
const DefaultAccelBufferSize = 100

// AccelBuffer is a fixed-capacity ring of the most recent accelerometer
// samples. Not safe for concurrent use.
type AccelBuffer struct {
	buf   []float64
	start int
	n     int
}

// NewAccelBuffer returns a buffer holding at most capacity samples.
// Values below one use DefaultAccelBufferSize.
func NewAccelBuffer(capacity int) *AccelBuffer {
	if capacity < 1 {
		capacity = DefaultAccelBufferSize
	}
	return &AccelBuffer{buf: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest one when full.
func (b *AccelBuffer) Push(v float64) {
	if b.n < len(b.buf) {
		b.buf[(b.start+b.n)%len(b.buf)] = v
		b.n++
		return
	}
	b.buf[b.start] = v
	b.start = (b.start + 1) % len(b.buf)
}

// Len returns the number of buffered samples.
func (b *AccelBuffer) Len() int { return b.n }

// Cap returns the buffer capacity.
func (b *AccelBuffer) Cap() int { return len(b.buf) }

// Tail returns a copy of the newest n samples in arrival order. n <= 0 or
// n larger than Len returns everything.
func (b *AccelBuffer) Tail(n int) []float64 {
	if n <= 0 || n > b.n {
		n = b.n
	}
	out := make([]float64, n)
	offset := b.n - n
	for i := 0; i < n; i++ {
		out[i] = b.buf[(b.start+offset+i)%len(b.buf)]
	}
	return out
}
