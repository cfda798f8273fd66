package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecretKeepsSuffix(t *testing.T) {
	assert.Equal(t, "****7890", MaskSecret("1234567890"))
	assert.Equal(t, "****", MaskSecret("123"))
	assert.Equal(t, "", MaskSecret("   "))
}

func TestMaskFieldsOnlyTouchesListedKeys(t *testing.T) {
	in := map[string]any{
		"bank_info": "BCA 1234567890",
		"title":     "Taxi",
		"nested":    map[string]any{"account_number": "00112233"},
		"amount":    315,
	}

	out := MaskFields(in, SensitiveKeys...)

	assert.Equal(t, "****7890", out["bank_info"])
	assert.Equal(t, "Taxi", out["title"])
	assert.Equal(t, 315, out["amount"])
	assert.Equal(t, map[string]any{"account_number": "****2233"}, out["nested"])
	assert.Equal(t, "BCA 1234567890", in["bank_info"])
}
