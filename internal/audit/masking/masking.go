package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose string values never reach the audit
// table in clear text.
var SensitiveKeys = []string{"bank_info", "account_number", "payment_target"}

// MaskSecret redacts a value while keeping the last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= 4 {
		return maskToken
	}
	return maskToken + string(runes[len(runes)-4:])
}

// MaskFields returns a copy of input with the listed keys masked. Nested maps
// are walked.
func MaskFields(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}

	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[key] = struct{}{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		switch cast := value.(type) {
		case string:
			if _, ok := sensitive[trimmed]; ok {
				out[trimmed] = MaskSecret(cast)
				continue
			}
			out[trimmed] = cast
		case map[string]any:
			out[trimmed] = MaskFields(cast, keys...)
		default:
			out[trimmed] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
