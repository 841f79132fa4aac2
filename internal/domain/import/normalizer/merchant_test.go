package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "שופרסל דיל", "שופרסל דיל"},
		{"trim and collapse", "  רמי   לוי\tשיווק  ", "רמי לוי שיווק"},
		{"star suffix", "WOLT *1234", "WOLT"},
		{"star without space", "PAYBOX*9876", "PAYBOX"},
		{"masked card", "AMAZON MKTPLACE XXXX5678", "AMAZON MKTPLACE"},
		{"hebrew card suffix", "סופר פארם כרטיס 4321", "סופר פארם"},
		{"reference number", "חברת חשמל 00123456", "חברת חשמל"},
		{"trailing date", "UBER TRIP 12/01", "UBER TRIP"},
		{"stacked noise", "NETFLIX.COM 998877 *1234", "NETFLIX.COM"},
		{"short number kept", "מסעדה 99", "מסעדה 99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.input))
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  פז  ")
	require.NotNil(t, got)
	assert.Equal(t, "פז", *got)

	assert.Nil(t, Normalize("   "))
	assert.Nil(t, Normalize("*1234"))
	assert.Nil(t, Normalize(""))
}
