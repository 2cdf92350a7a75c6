// Copyright (c) 2023, The KLEM Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package progctx

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	ctx := New(context.Background())
	_ = context.Context(ctx)  // ProgCtx should implement context.Context
	ctx2 := New(nil)          // nolint
	_ = context.Context(ctx2) // ProgCtx should implement context.Context
}

func TestProgCtx_Cancel(t *testing.T) {
	ctx := New(context.Background())
	err := errors.Errorf("test error")
	ctx.Cancel(err)
	go func() {
		ctx.Cancel(errors.Errorf("second error"))
		assert.True(t, ctx.Err() == context.Canceled)
	}()
	<-ctx.Done()
	assert.Equal(t, err, ctx.Cause())
}

func TestProgCtx_CancelNilError(t *testing.T) {
	ctx := New(context.Background())
	ctx.Cancel(nil)
	<-ctx.Done()
	assert.Nil(t, ctx.Cause())
}

func TestProgCtx_DeferOrder(t *testing.T) {
	ctx := New(context.Background())
	var order []int
	ctx.Defer(func() { order = append(order, 1) })
	ctx.Defer(func() { order = append(order, 2) })
	ctx.Cancel("done")
	ctx.Cancel("again")
	assert.Equal(t, []int{2, 1}, order)
	assert.Panics(t, func() {
		ctx.Defer(func() {})
	})
}

func TestProgCtx_Wait(t *testing.T) {
	ctx := New(context.Background())
	ctx.WaitAdd("test1", 1)
	go func() {
		ctx.WaitDone("test1")
	}()

	ctx.WaitAdd("test2", 2)
	for i := 0; i < 2; i++ {
		go func() { defer ctx.WaitDone("test2") }()
	}

	for i := 0; i < 3; i++ {
		ctx.Go("test3", func() {})
	}

	ctx.Wait()
	assert.Equal(t, 0, ctx.WaitCount())
}

func TestProgCtx_WaitTimeout(t *testing.T) {
	ctx := New(context.Background())
	release := make(chan struct{})
	ctx.Go("blocked", func() { <-release })

	err := ctx.WaitTimeout(20 * time.Millisecond)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "blocked")

	close(release)
	assert.Nil(t, ctx.WaitTimeout(time.Second))
}
