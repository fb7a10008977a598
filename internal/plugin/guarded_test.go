// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	plugins "github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/pkg/plugin"
)

func TestNewGuarded_NilPanics(t *testing.T) {
	assert.Panics(t, func() { plugins.NewGuarded(nil) })
}

func TestGuarded_ConcurrentLoadAndCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture()
	const n = 8
	for i := range n {
		f.adder(fmt.Sprintf("p%d.so", i), fmt.Sprintf("P%d", i))
	}
	g := plugins.NewGuarded(plugins.NewManager(f.loader))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Load(ctx, fmt.Sprintf("p%d.so", i)))
		}()
	}
	wg.Wait()
	assert.Equal(t, n, g.Len())
	assert.Equal(t, n, g.Handles())
	assert.Len(t, g.Infos(), n)

	results := make([]int64, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Call(fmt.Sprintf("P%d", i), func(p plugin.Plugin) error {
				v, err := p.Work(int64(i), 1)
				results[i] = v
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	for i, v := range results {
		assert.Equal(t, int64(i+1), v)
	}

	require.NoError(t, g.Close())
	assert.Equal(t, 0, g.Handles())
	assert.ErrorIs(t, g.Call("P0", func(plugin.Plugin) error { return nil }), plugins.ErrNotFound)
	assert.ErrorIs(t, g.Load(ctx, "p0.so"), plugins.ErrManagerClosed)
}

func TestGuarded_UnloadAllAndLoadAll(t *testing.T) {
	f := newFixture().adder("a.so", "A").adder("b.so", "B")
	g := plugins.NewGuarded(plugins.NewManager(f.loader))
	ctx := context.Background()
	t.Cleanup(func() { _ = g.Close() })

	require.NoError(t, g.LoadAll(ctx, []string{"a.so", "b.so"}))
	assert.Equal(t, 2, g.Len())

	g.UnloadAll(ctx)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 0, g.Handles())
}
