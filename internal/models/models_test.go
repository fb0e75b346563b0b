package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusValid(t *testing.T) {
	for _, s := range OrderStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, OrderStatus("Refunded").Valid())
	assert.False(t, OrderStatus("pending").Valid())
	assert.False(t, OrderStatus("").Valid())
}
