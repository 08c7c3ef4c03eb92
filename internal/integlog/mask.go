package integlog

import (
	"encoding/json"
	"regexp"
	"strings"
)

const masked = "***"

var sensitiveKeys = map[string]bool{
	"authorization":  true,
	"access_token":   true,
	"accesstoken":    true,
	"refresh_token":  true,
	"client_secret":  true,
	"clientsecret":   true,
	"client_id":      true,
	"api_key":        true,
	"apikey":         true,
	"secret":         true,
	"password":       true,
	"token":          true,
	"card_number":    true,
	"cvc":            true,
	"account_number": true,
	"accountnumber":  true,
	"signature":      true,
}

var (
	bearerRe = regexp.MustCompile(`(?i)(bearer|basic)\s+[A-Za-z0-9\-\._~\+/=]+`)
	formRe   = regexp.MustCompile(`(?i)\b(client_secret|client_id|access_token|api_key|password|token)=([^&\s"]+)`)
	stripeRe = regexp.MustCompile(`\b(sk|rk|pk)_(live|test)_[A-Za-z0-9]+`)
)

// Mask menghapus secret dari payload sebelum disimpan. JSON di-walk per key;
// selain JSON dipakai regex untuk pola bearer/basic, form-encoded dan key stripe.
func Mask(payload string) string {
	if payload == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err == nil {
		if b, err := json.Marshal(maskValue(v)); err == nil {
			return maskText(string(b))
		}
	}
	return maskText(payload)
}

func maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if isSensitive(k) {
				t[k] = masked
				continue
			}
			t[k] = maskValue(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = maskValue(t[i])
		}
		return t
	}
	return v
}

func isSensitive(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	return sensitiveKeys[k]
}

func maskText(s string) string {
	s = bearerRe.ReplaceAllString(s, "$1 "+masked)
	s = formRe.ReplaceAllString(s, "$1="+masked)
	return stripeRe.ReplaceAllString(s, "${1}_${2}_"+masked)
}

// Truncate memotong payload ke max byte (di batas rune) dan menandai sisanya.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
