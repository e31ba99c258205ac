package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/catalog"
)

type settingsMap map[id.ID]catalog.StoreSettings

func (m settingsMap) GetStoreSettings(_ context.Context, storeID id.ID) (*catalog.StoreSettings, error) {
	if s, ok := m[storeID]; ok {
		return &s, nil
	}
	return catalog.DefaultStoreSettings(storeID), nil
}

func TestNegativeStock_AllowNegative(t *testing.T) {
	hardFloor, optIn, ruled, broken := id.New(), id.New(), id.New(), id.New()
	p, err := NewNegativeStock(settingsMap{
		optIn:  {StoreID: optIn, AllowNegativeStock: true},
		ruled:  {StoreID: ruled, AllowNegativeStock: true, NegativeStockRule: `category != "tobacco" && requested - on_hand <= 5`},
		broken: {StoreID: broken, AllowNegativeStock: true, NegativeStockRule: `requested +`},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		line Line
		want bool
	}{
		{"NoSettingsRow", Line{StoreID: hardFloor, Requested: 3, OnHand: 1}, false},
		{"OptedIn", Line{StoreID: optIn, Requested: 300, OnHand: 0}, true},
		{"RuleAllows", Line{StoreID: ruled, Category: "grocery", Requested: 6, OnHand: 2}, true},
		{"RuleDeniesCategory", Line{StoreID: ruled, Category: "tobacco", Requested: 6, OnHand: 2}, false},
		{"RuleDeniesDepth", Line{StoreID: ruled, Category: "grocery", Requested: 10, OnHand: 2}, false},
		{"BrokenRuleDenies", Line{StoreID: broken, Requested: 2, OnHand: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.AllowNegative(context.Background(), tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNegativeStock_Compile(t *testing.T) {
	p, err := NewNegativeStock(settingsMap{})
	require.NoError(t, err)

	_, err = p.Compile(`requested <= 10`)
	assert.NoError(t, err)

	_, err = p.Compile(`requested + 1`)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "non-bool rule")

	_, err = p.Compile(`unknown_var > 1`)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
