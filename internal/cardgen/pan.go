package cardgen

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// PANLength is the length of every card number issued by this ledger.
	PANLength = 16

	binLength       = 6
	accountIDLength = 9
)

// ComputeChecksum returns the Luhn check digit for bin followed by accountID.
//
// Doubling is anchored at index 0 of the concatenated decimal string, not at the
// rightmost digit. For the 15-digit bodies issued here both anchorings coincide.
func ComputeChecksum(bin, accountID int) int {
	body := fmt.Sprintf("%d%d", bin, accountID)
	sum := 0
	for i := 0; i < len(body); i++ {
		d := int(body[i] - '0')
		if i%2 == 0 {
			d *= 2
		}
		sum += d%10 + d/10
	}
	return (10 - (sum % 10)) % 10
}

// IsValid reports whether cardNumber is a 16-digit number whose last digit is the
// checksum of its BIN and account identifier. It never panics.
func IsValid(cardNumber string) bool {
	if len(cardNumber) != PANLength || !IsDigits(cardNumber) {
		return false
	}

	bin, err := strconv.Atoi(cardNumber[:binLength])
	if err != nil {
		return false
	}
	accountID, err := strconv.Atoi(cardNumber[binLength : binLength+accountIDLength])
	if err != nil {
		return false
	}
	checksum := int(cardNumber[PANLength-1] - '0')

	return ComputeChecksum(bin, accountID) == checksum
}

// IsDigits reports whether s holds only ASCII digits. The empty string qualifies.
func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MaskPAN keeps the BIN and the last four digits, e.g. 400000******0896.
func MaskPAN(pan string) string {
	cleaned := NormalizePAN(pan)
	n := len(cleaned)
	if n == 0 {
		return ""
	}
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	if n < 10 {
		return strings.Repeat("*", n-4) + cleaned[n-4:]
	}
	return cleaned[:6] + strings.Repeat("*", n-10) + cleaned[n-4:]
}

// NormalizePAN strips spaces, tabs and dashes.
func NormalizePAN(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}
