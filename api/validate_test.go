package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldProblems_UseJSONNames(t *testing.T) {
	err := requests.Struct(&AppendEntryRequest{Kind: "theft", Reverses: -1, Note: strings.Repeat("x", 501)})
	require.Error(t, err)

	problems := fieldProblems(err)

	assert.Equal(t, map[string]string{
		"part_code": "is required",
		"kind":      "must be one of purchase, consumption, direct_order, return_to_supplier, customer_return, loss, transfer, adjustment",
		"reverses":  "must not be negative",
		"note":      "at most 500 characters",
	}, problems)
}

func TestFieldProblems_OtherErrors(t *testing.T) {
	assert.Empty(t, fieldProblems(assert.AnError))
}
