package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowcore/ledgercore/internal/money"
)

func TestParseAmountMinor(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    money.Minor
		wantErr bool
	}{
		{name: "whole units", input: "150", want: 15000},
		{name: "two decimal places", input: "150.25", want: 15025},
		{name: "zero", input: "0", want: 0},
		{name: "malformed", input: "not-a-number", wantErr: true},
		{name: "too much precision", input: "150.255", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAmountMinor(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOptionalAmountMinor_EmptyIsZero(t *testing.T) {
	got, err := parseOptionalAmountMinor("")
	require.NoError(t, err)
	assert.Equal(t, money.Minor(0), got)
}

func TestParseOptionalAmountMinor_NonEmptyParses(t *testing.T) {
	got, err := parseOptionalAmountMinor("10.50")
	require.NoError(t, err)
	assert.Equal(t, money.Minor(1050), got)
}
