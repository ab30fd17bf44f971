package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const addressLength = 32

var ErrInvalidAddress = errors.New("invalid address")

// NormalizeAddress returns the canonical 0x-prefixed, zero-padded,
// lower-case form of a 32-byte account or package address.
func NormalizeAddress(raw string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(raw))
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" || len(clean) > addressLength*2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	padded := "0x" + strings.Repeat("0", addressLength*2-len(clean)) + clean
	if _, err := hexutil.Decode(padded); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}
	return padded, nil
}

// NormalizeCoinType canonicalises the address part of a coin type tag such as
// 0x2::sui::SUI. Module and struct names are kept verbatim.
func NormalizeCoinType(raw string) (string, error) {
	parts := strings.Split(strings.TrimSpace(raw), "::")
	if len(parts) < 3 {
		return "", fmt.Errorf("coin type %q: expected address::module::name", raw)
	}
	addr, err := NormalizeAddress(parts[0])
	if err != nil {
		return "", fmt.Errorf("coin type %q: %w", raw, err)
	}
	parts[0] = addr
	return strings.Join(parts, "::"), nil
}

// ShortenType abbreviates the address of a coin type for display,
// e.g. 0x0000...0002::sui::SUI.
func ShortenType(coinType string) string {
	if coinType == "" {
		return ""
	}
	parts := strings.Split(coinType, "::")
	return shortenHead(parts[0]) + "::" + strings.Join(parts[1:], "::")
}

func ShortenID(id string) string {
	return shortenHead(id)
}

func shortenHead(s string) string {
	head := s
	if len(head) > 6 {
		head = head[:6]
	}
	tail := s
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return head + "..." + tail
}
