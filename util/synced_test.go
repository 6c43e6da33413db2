package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeCounter(t *testing.T) {
	sc := NewSafeInt()
	assert.Equal(t, 0, sc.Value())
	assert.Equal(t, 1, sc.Increment())

	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.Increment()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1001, sc.Value())
}

func TestSafeFlag(t *testing.T) {
	sf := NewSafeBool()
	assert.False(t, sf.Value())

	assert.True(t, sf.Set(true), "false to true is a change")
	assert.True(t, sf.Value())
	assert.False(t, sf.Set(true), "already set")

	assert.True(t, sf.Set(false))
	assert.False(t, sf.Value())
}
