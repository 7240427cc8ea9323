package inbound

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Verifier authenticates a raw request before it is decoded. Events only
// enter the queue after their provider's verifier accepts them.
type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

type VerifierFunc func(ctx context.Context, req Request) error

func (f VerifierFunc) Verify(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// HMACVerifier checks a SHA-256 HMAC of the raw body carried in a header.
type HMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HMACVerifier) Verify(_ context.Context, req Request) error {
	signature, err := signatureValue(req, v.Header, v.Prefix)
	if err != nil {
		return err
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("inbound: signature secret is required")
	}
	return compareSignature(signature, v.Encoding, hmacSHA256(secret, req.Body))
}

// TokenVerifier compares a shared token header, as used by Google channel
// notifications.
type TokenVerifier struct {
	Header string
	Token  string
}

func (v TokenVerifier) Verify(_ context.Context, req Request) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("inbound: verification token is required")
	}
	actual := strings.TrimSpace(req.Headers.Get(v.Header))
	if actual == "" {
		return fmt.Errorf("inbound: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("inbound: verification token mismatch")
	}
	return nil
}

const (
	SlackSignatureHeader = "X-Slack-Signature"
	SlackTimestampHeader = "X-Slack-Request-Timestamp"

	defaultSlackMaxSkew = 5 * time.Minute
)

// SlackVerifier checks the v0 request signature: an HMAC over
// "v0:<timestamp>:<body>" that must be no older than MaxSkew.
type SlackVerifier struct {
	SigningSecret string
	MaxSkew       time.Duration
	Now           func() time.Time
}

func (v SlackVerifier) Verify(_ context.Context, req Request) error {
	secret := strings.TrimSpace(v.SigningSecret)
	if secret == "" {
		return fmt.Errorf("inbound: slack signing secret is required")
	}
	rawTimestamp := strings.TrimSpace(req.Headers.Get(SlackTimestampHeader))
	if rawTimestamp == "" {
		return fmt.Errorf("inbound: %s header is required", SlackTimestampHeader)
	}
	seconds, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("inbound: invalid slack timestamp %q", rawTimestamp)
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	maxSkew := v.MaxSkew
	if maxSkew <= 0 {
		maxSkew = defaultSlackMaxSkew
	}
	skew := now().Sub(time.Unix(seconds, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return fmt.Errorf("inbound: slack request timestamp is outside the allowed window")
	}

	signature, err := signatureValue(req, SlackSignatureHeader, "v0=")
	if err != nil {
		return err
	}
	base := make([]byte, 0, len(rawTimestamp)+len(req.Body)+4)
	base = append(base, "v0:"...)
	base = append(base, rawTimestamp...)
	base = append(base, ':')
	base = append(base, req.Body...)
	return compareSignature(signature, "hex", hmacSHA256(secret, base))
}

// SlackSignature builds the header value a Slack request with this body and
// timestamp would carry.
func SlackSignature(signingSecret string, timestamp int64, body []byte) string {
	base := fmt.Sprintf("v0:%d:%s", timestamp, body)
	return "v0=" + hex.EncodeToString(hmacSHA256(signingSecret, []byte(base)))
}

func signatureValue(req Request, header, prefix string) (string, error) {
	raw := strings.TrimSpace(req.Headers.Get(header))
	if raw == "" {
		return "", fmt.Errorf("inbound: %s signature header is required", strings.TrimSpace(header))
	}
	signature := strings.TrimSpace(strings.TrimPrefix(raw, strings.TrimSpace(prefix)))
	if signature == "" {
		return "", fmt.Errorf("inbound: signature value is required")
	}
	return signature, nil
}

func compareSignature(signature, encoding string, expected []byte) error {
	var (
		decoded []byte
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("inbound: decode signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("inbound: signature verification failed")
	}
	return nil
}

func hmacSHA256(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}
