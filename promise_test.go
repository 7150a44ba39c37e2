package coredispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPromiseSetThenOnComplete(t *testing.T) {
	r := require.New(t)

	p := newPromise[int]()
	f := p.Future()
	r.False(f.isDone())

	fired := false
	f.onComplete(func() { fired = true })
	r.False(fired)

	p.set(42, nil)
	r.True(fired)
	r.True(f.isDone())

	v, err := f.result()
	r.NoError(err)
	r.Equal(42, v)
}

func TestPromiseOnCompleteAfterSetRunsImmediately(t *testing.T) {
	r := require.New(t)

	p := newPromise[string]()
	p.set("done", nil)

	called := false
	p.Future().onComplete(func() { called = true })
	r.True(called, "onComplete on an already-fired promise runs fn synchronously")
}

func TestPromiseSetIsOnlyEffectiveOnce(t *testing.T) {
	r := require.New(t)

	p := newPromise[int]()
	p.set(1, nil)
	p.set(2, errFakeSecondSet)

	v, err := p.Future().result()
	r.NoError(err)
	r.Equal(1, v)
}

var errFakeSecondSet = context.Canceled

func TestFutureGetBlocksUntilSet(t *testing.T) {
	r := require.New(t)

	p := newPromise[int]()
	f := p.Future()

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.set(7, nil)
	}()

	v, err := f.Get(context.Background())
	r.NoError(err)
	r.Equal(7, v)
}

func TestFutureGetRespectsContextCancellation(t *testing.T) {
	r := require.New(t)

	p := newPromise[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Future().Get(ctx)
	r.ErrorIs(err, context.Canceled)
}
