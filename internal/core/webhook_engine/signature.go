package webhook_engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Verifier checks provider signatures over the raw request body.
//
// Two header formats are accepted:
//
//	<hex>                    HMAC-SHA256(secret, body)
//	t=<unix>,v0=<hex>        HMAC-SHA256(secret, "<unix>.<body>")
//
// A "sha256=" prefix on the plain form is tolerated.
type Verifier struct {
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(tolerance time.Duration) *Verifier {
	return &Verifier{tolerance: tolerance, now: time.Now}
}

// Verify reports whether header is a valid signature of body under secret.
// An empty secret or header never verifies.
func (v *Verifier) Verify(body []byte, header, secret string) bool {
	header = strings.TrimSpace(header)
	if secret == "" || header == "" {
		return false
	}

	if ts, sigs, ok := parseTimestamped(header); ok {
		if v.tolerance > 0 {
			age := v.now().Sub(time.Unix(ts, 0))
			if age > v.tolerance || age < -v.tolerance {
				return false
			}
		}
		expected := mac(secret, []byte(strconv.FormatInt(ts, 10)+"."), body)
		for _, sig := range sigs {
			if equalHex(expected, sig) {
				return true
			}
		}
		return false
	}

	return equalHex(mac(secret, body), strings.TrimPrefix(header, "sha256="))
}

// Sign returns the plain hex signature of body.
func Sign(body []byte, secret string) string {
	return hex.EncodeToString(mac(secret, body))
}

// SignTimestamped returns a "t=<unix>,v0=<hex>" header for body signed at ts.
func SignTimestamped(body []byte, secret string, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v0=" + hex.EncodeToString(mac(secret, []byte(unix+"."), body))
}

func mac(secret string, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// equalHex decodes sig and compares it in constant time.
func equalHex(expected []byte, sig string) bool {
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(sig)))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func parseTimestamped(header string) (int64, []string, bool) {
	if !strings.HasPrefix(header, "t=") {
		return 0, nil, false
	}
	var (
		ts    int64
		hasTS bool
		sigs  []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, false
			}
			ts, hasTS = n, true
		case "v0":
			sigs = append(sigs, val)
		}
	}
	return ts, sigs, hasTS && len(sigs) > 0
}
