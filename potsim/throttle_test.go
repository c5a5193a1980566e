package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/gowater/pkg/history"
)

func TestThrottle(t *testing.T) {
	var calls []int
	fn := newThrottle(time.Hour, func(slot int, _ []history.Reading, _ []history.Span) {
		calls = append(calls, slot)
	})

	fn(0, nil, nil)
	fn(0, nil, nil)
	fn(1, nil, nil)
	fn(1, nil, nil)
	assert.Equal(t, []int{0, 1}, calls)

	fn = newThrottle(0, func(slot int, _ []history.Reading, _ []history.Span) {
		calls = append(calls, slot)
	})
	fn(2, nil, nil)
	fn(2, nil, nil)
	assert.Equal(t, []int{0, 1, 2, 2}, calls)
}
