package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBufferSizeBuckets(t *testing.T) {
	tests := []struct {
		name        string
		requestSize int
		expectCap   int
	}{
		{"512B bucket - exact", 512, 512},
		{"512B bucket - smaller", 300, 512},
		{"1KB bucket - exact", 1024, 1024},
		{"1KB bucket - smaller", 800, 1024},
		{"4KB bucket - exact", 4096, 4096},
		{"4KB bucket - smaller", 3000, 4096},
		{"8KB bucket - exact", 8192, 8192},
		{"8KB bucket - smaller", 6000, 8192},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GetBuffer(tt.requestSize)
			assert.Len(t, buf, tt.requestSize)
			assert.Equal(t, tt.expectCap, cap(buf))
			PutBuffer(buf)
		})
	}
}

func TestGetBufferAboveLargestBucket(t *testing.T) {
	buf := GetBuffer(1 << 20)
	assert.Len(t, buf, 1<<20)
	// Not pooled, but must not panic on return.
	PutBuffer(buf)
}

func TestBufferPoolReuse(t *testing.T) {
	buf1 := GetBuffer(4096)
	ptr1 := &buf1[0]
	PutBuffer(buf1)

	buf2 := GetBuffer(4096)
	ptr2 := &buf2[0]
	PutBuffer(buf2)

	if ptr1 == ptr2 {
		t.Log("buffer was reused from pool")
	} else {
		t.Log("buffer was not reused (sync.Pool GC behavior)")
	}
}

func TestPutBufferNonStandardCap(t *testing.T) {
	buf := make([]byte, 777)
	assert.NotPanics(t, func() { PutBuffer(buf) })
}

func BenchmarkGetBuffer512B(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := GetBuffer(512)
		PutBuffer(buf)
	}
}

func BenchmarkGetBuffer4KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := GetBuffer(4096)
		PutBuffer(buf)
	}
}

func BenchmarkMakeBuffer512B(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = make([]byte, 512)
	}
}
