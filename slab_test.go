package coredispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlabAllocateWithinCapacity(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](4)
	r.True(s.IsEmpty())

	a := s.Create(func(p *int) { *p = 1 })
	b := s.Create(func(p *int) { *p = 2 })
	r.Equal(1, *a)
	r.Equal(2, *b)
	r.Equal(2, s.AllocatedBlocks())
	r.Equal(int64(0), s.AllocatedHeapBlocks())

	s.Dispose(a, nil)
	r.Equal(1, s.AllocatedBlocks())

	c := s.Allocate()
	r.Equal(a, c, "freed block should be reused before growing")
}

func TestSlabOverflowsToHeap(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](2)
	a := s.Allocate()
	b := s.Allocate()
	r.True(s.IsFull())

	c := s.Allocate() // exceeds stack capacity
	r.Equal(int64(1), s.AllocatedHeapBlocks())

	s.Deallocate(a)
	s.Deallocate(b)
	s.Deallocate(c)
	r.Equal(int64(0), s.AllocatedHeapBlocks())
	r.True(s.IsEmpty())
}

func TestSlabZeroCapacityAlwaysOverflows(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](0)
	p := s.Allocate()
	r.NotNil(p)
	r.Equal(int64(1), s.AllocatedHeapBlocks())
}

func TestSlabConcurrentUse(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](16)
	const goroutines = 32
	const iterations = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				p := s.Create(func(p *int) { *p = j })
				s.Dispose(p, nil)
			}
		}()
	}
	wg.Wait()

	r.True(s.IsEmpty())
	r.Equal(int64(0), s.AllocatedHeapBlocks())
}
