package stash

import (
	"context"
	"fmt"
)

// Future holds the eventual result of an asynchronous transfer.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the transfer completes or ctx is done, whichever comes
// first. The underlying transfer keeps running if ctx expires first; pass
// the same ctx to the submitting call to cancel it.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the transfer has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// submit schedules fn on the provider-owned executor. The executor starts
// lazily on first use and admits at most asyncWorkers transfers at a time;
// excess submissions queue as parked goroutines.
func (p *Provider) submit(fn func() (string, error)) *Future[string] {
	p.asyncOnce.Do(func() {
		p.asyncSem = make(chan struct{}, p.asyncWorkers)
	})

	f := &Future[string]{done: make(chan struct{})}
	go func() {
		p.asyncSem <- struct{}{}
		defer func() {
			<-p.asyncSem
			if r := recover(); r != nil {
				f.err = fmt.Errorf("async transfer panicked: %v", r)
			}
			close(f.done)
		}()
		f.val, f.err = fn()
	}()
	return f
}

// GetDataAsync is GetData scheduled on the provider's executor.
func (p *Provider) GetDataAsync(ctx context.Context, remote, local string, recursive bool) *Future[string] {
	return p.submit(func() (string, error) {
		return p.GetData(ctx, remote, local, recursive)
	})
}

// PutDataAsync is PutData scheduled on the provider's executor.
func (p *Provider) PutDataAsync(ctx context.Context, local, remote string, recursive bool, metadata map[string]string) *Future[string] {
	return p.submit(func() (string, error) {
		return p.PutData(ctx, local, remote, recursive, metadata)
	})
}

// PutRawAsync is PutRaw scheduled on the provider's executor.
func (p *Provider) PutRawAsync(ctx context.Context, src any, opts ...RawOption) *Future[string] {
	return p.submit(func() (string, error) {
		return p.PutRaw(ctx, src, opts...)
	})
}
