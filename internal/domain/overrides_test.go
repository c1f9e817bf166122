package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverrideFlags_Bits(t *testing.T) {
	assert.Equal(t, OverrideFlags(1), OverrideMerchant)
	assert.Equal(t, OverrideFlags(2), OverrideCategory)
	assert.Equal(t, OverrideFlags(4), OverrideInternal)
}

func TestOverrideFlags_SetClear(t *testing.T) {
	var f OverrideFlags
	assert.False(t, f.IsOverridden(OverrideCategory))

	f = f.Set(OverrideCategory)
	assert.True(t, f.IsOverridden(OverrideCategory))
	assert.False(t, f.IsOverridden(OverrideMerchant))
	assert.False(t, f.IsOverridden(0))

	f = f.Set(OverrideInternal).Clear(OverrideCategory)
	assert.False(t, f.IsOverridden(OverrideCategory))
	assert.True(t, f.IsOverridden(OverrideInternal))
	assert.Equal(t, []string{"internal"}, f.Names())
}

func TestParseOverrideFields(t *testing.T) {
	f, err := ParseOverrideFields([]string{"Merchant", " category "})
	require.NoError(t, err)
	assert.Equal(t, OverrideMerchant|OverrideCategory, f)

	_, err = ParseOverrideFields([]string{"amount"})
	assert.Error(t, err)
}

func TestTransactionEdit_Apply(t *testing.T) {
	cat := "cat-food"
	internal := true

	tests := []struct {
		name        string
		tx          Transaction
		edit        TransactionEdit
		wantChanged bool
		wantFlags   OverrideFlags
	}{
		{
			name:        "category edit sets override",
			tx:          Transaction{},
			edit:        TransactionEdit{CategoryID: &cat},
			wantChanged: true,
			wantFlags:   OverrideCategory,
		},
		{
			name:        "same value still pins the field",
			tx:          Transaction{CategoryID: cat},
			edit:        TransactionEdit{CategoryID: &cat},
			wantChanged: false,
			wantFlags:   OverrideCategory,
		},
		{
			name:        "internal edit and clear category",
			tx:          Transaction{OverrideFlags: OverrideCategory},
			edit:        TransactionEdit{IsInternal: &internal, ClearOverrides: OverrideCategory},
			wantChanged: true,
			wantFlags:   OverrideInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := tt.tx
			assert.Equal(t, tt.wantChanged, tt.edit.Apply(&tx))
			assert.Equal(t, tt.wantFlags, tx.OverrideFlags)
		})
	}
}
