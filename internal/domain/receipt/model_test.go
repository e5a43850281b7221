package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{StatusPendingUpdate, StatusUpdated, true},
		{StatusUpdated, StatusReprinted, true},
		// Повторная перепечатка допустима
		{StatusReprinted, StatusReprinted, true},
		// Перепечатка без финального номера запрещена
		{StatusPendingUpdate, StatusReprinted, false},
		// Регресс к pending_update запрещен
		{StatusUpdated, StatusPendingUpdate, false},
		{StatusReprinted, StatusUpdated, false},
		{StatusReprinted, StatusPendingUpdate, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}
