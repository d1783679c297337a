package security

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/i2y/restbridge/internal/domain"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Timestamp"
)

// HMAC signs the request with HMAC-SHA256 over
// METHOD "\n" target "\n" unix-timestamp "\n" hex(sha256(body)).
//
//	securityContext: env=PARTNER_SECRET;header=X-Signature;timestampHeader=X-Timestamp
//
// The body is buffered to compute the digest.
type HMAC struct {
	getenv func(string) string
	now    func() time.Time
}

// NewHMAC creates an HMAC signer. now defaults to time.Now.
func NewHMAC(getenv func(string) string, now func() time.Time) *HMAC {
	if now == nil {
		now = time.Now
	}
	return &HMAC{getenv: getenv, now: now}
}

// Authenticate implements usecase.SecurityProvider.
func (p *HMAC) Authenticate(_ context.Context, req *domain.CompiledRequest, securityContext string) (bool, error) {
	settings, err := parseContext(securityContext)
	if err != nil {
		return false, err
	}
	key, err := secret(p.getenv, settings)
	if err != nil {
		return false, err
	}

	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return false, fmt.Errorf("failed to read body for signing: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	timestamp := strconv.FormatInt(p.now().Unix(), 10)
	req.Header.Set(orDefault(settings["timestampheader"], defaultTimestampHeader), timestamp)
	req.Header.Set(orDefault(settings["header"], defaultSignatureHeader), Sign(key, req.Method, req.Target, timestamp, body))
	return true, nil
}

// Sign computes the hex encoded signature of one request.
func Sign(key, method, target, timestamp string, body []byte) string {
	digest := sha256.Sum256(body)
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join([]string{method, target, timestamp, hex.EncodeToString(digest[:])}, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
