package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusCreated, StatusPaid, StatusProcessing, StatusShipped,
	StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunding, StatusRefunded,
}

func TestCanTransition(t *testing.T) {
	allowed := map[Status]map[Status]bool{
		StatusCreated:    {StatusPaid: true, StatusCancelled: true},
		StatusPaid:       {StatusProcessing: true, StatusRefunding: true},
		StatusProcessing: {StatusShipped: true, StatusRefunding: true},
		StatusShipped:    {StatusDelivered: true},
		StatusDelivered:  {StatusCompleted: true, StatusRefunding: true},
		StatusRefunding:  {StatusRefunded: true},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[from][to]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range allStatuses {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range allStatuses {
			assert.False(t, CanTransition(from, to), "terminal %s must not reach %s", from, to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("SHIPPED")
	assert.True(t, ok)
	assert.Equal(t, StatusShipped, s)

	_, ok = ParseStatus("shipped")
	assert.False(t, ok)
	_, ok = ParseStatus("UNKNOWN")
	assert.False(t, ok)
}

func TestParsePaymentMethod(t *testing.T) {
	m, ok := ParsePaymentMethod("ALIPAY")
	assert.True(t, ok)
	assert.Equal(t, PaymentMethodAlipay, m)

	_, ok = ParsePaymentMethod("BARTER")
	assert.False(t, ok)
}
