package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature возвращается при невалидной подписи webhook.
// Это единственная причина, по которой webhook отклоняется.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// DefaultSignatureTolerance допустимый возраст подписанного уведомления.
const DefaultSignatureTolerance = 5 * time.Minute

// ComputeSignature считает HMAC-SHA256 подпись вида провайдера
// над строкой "<timestamp>.<payload>".
func ComputeSignature(t time.Time, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", t.Unix())
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader формирует значение заголовка Stripe-Signature,
// используется в тестах для сборки валидных запросов.
func SignatureHeader(t time.Time, payload []byte, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), ComputeSignature(t, payload, secret))
}

// VerifySignature проверяет заголовок Stripe-Signature (t=...,v1=...)
// против общего секрета. Сравнение выполняется в константное время,
// временная метка ограничена tolerance против replay устаревших уведомлений.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			t, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = t
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	signedAt := time.Unix(timestamp, 0)
	if d := time.Since(signedAt); d > tolerance || d < -tolerance {
		return ErrInvalidSignature
	}

	expected := ComputeSignature(signedAt, payload, secret)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}
