package iocap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeterson-oss/sqlitefmt/internal/iocap"
)

func TestSyncWriteThenRead(t *testing.T) {
	f := iocap.NewSync()
	ctx := context.Background()

	want := []byte("page bytes")
	var written int
	f.SubmitWrite(ctx, 512, want, func(n int, err error) {
		require.NoError(t, err)
		written = n
	})
	assert.Equal(t, len(want), written)

	got := make([]byte, len(want))
	var read int
	f.SubmitRead(ctx, 512, got, func(n int, err error) {
		require.NoError(t, err)
		read = n
	})
	assert.Equal(t, len(want), read)
	assert.Equal(t, want, got)
}

func TestSyncReadUnwrittenOffsetReturnsZero(t *testing.T) {
	f := iocap.NewSync()
	ctx := context.Background()

	buf := make([]byte, 16)
	var n int
	f.SubmitRead(ctx, 4096, buf, func(got int, err error) {
		require.NoError(t, err)
		n = got
	})
	assert.Equal(t, 0, n)
}

func TestSyncRunOnceIsNoOp(t *testing.T) {
	f := iocap.NewSync()
	require.NoError(t, f.RunOnce(context.Background()))
}

func TestSyncSyncInvokesCompletion(t *testing.T) {
	f := iocap.NewSync()
	called := false
	f.SubmitSync(context.Background(), func(n int, err error) {
		called = true
		require.NoError(t, err)
	})
	assert.True(t, called)
}
