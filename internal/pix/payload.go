// Package pix builds static PIX payloads in the EMV merchant-presented QR format.
package pix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	gui             = "br.gov.bcb.pix"
	maxMerchantName = 25
	maxMerchantCity = 15
	maxTxID         = 25
	crcTag          = "6304"
)

var (
	// ErrMissingKey is returned when no PIX key is configured.
	ErrMissingKey = errors.New("pix: key is required")
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("pix: amount must not be negative")
	// ErrFieldTooLong is returned when a field value exceeds the two-digit EMV length.
	ErrFieldTooLong = errors.New("pix: field value too long")
)

// Payload holds the inputs of a static PIX code.
type Payload struct {
	Key          string
	AmountCents  int64
	MerchantName string
	City         string
	BookingID    string
}

// Generate returns the EMV payload for p terminated by its CRC16. Identical
// inputs always produce identical output. A zero amount omits field 54 so the
// payer enters the value.
func Generate(p Payload) (string, error) {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return "", ErrMissingKey
	}
	if p.AmountCents < 0 {
		return "", ErrInvalidAmount
	}

	account, err := concatFields(
		field{"00", gui},
		field{"01", key},
	)
	if err != nil {
		return "", err
	}
	additional, err := concatFields(field{"05", TxID(p.BookingID)})
	if err != nil {
		return "", err
	}

	fields := []field{
		{"00", "01"},
		{"01", "11"},
		{"26", account},
		{"52", "0000"},
		{"53", "986"},
	}
	if p.AmountCents > 0 {
		fields = append(fields, field{"54", FormatAmount(p.AmountCents)})
	}
	fields = append(fields,
		field{"58", "BR"},
		field{"59", clean(p.MerchantName, maxMerchantName)},
		field{"60", clean(p.City, maxMerchantCity)},
		field{"62", additional},
	)

	body, err := concatFields(fields...)
	if err != nil {
		return "", err
	}
	body += crcTag
	return body + fmt.Sprintf("%04X", CRC16([]byte(body))), nil
}

// Verify recomputes the trailing checksum of code.
func Verify(code string) bool {
	if len(code) < len(crcTag)+4 {
		return false
	}
	body, sum := code[:len(code)-4], code[len(code)-4:]
	if !strings.HasSuffix(body, crcTag) {
		return false
	}
	want, err := strconv.ParseUint(sum, 16, 16)
	if err != nil {
		return false
	}
	return strings.ToUpper(sum) == sum && uint16(want) == CRC16([]byte(body))
}

// FormatAmount renders minor units with two decimals and a dot separator.
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// TxID derives the transaction id from a booking id: its ASCII letters and
// digits, at most 25 of them, or "***" when none remain.
func TxID(bookingID string) string {
	var b strings.Builder
	for _, r := range bookingID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			if b.Len() == maxTxID {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "***"
	}
	return b.String()
}

// CRC16 is CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF, MSB first.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

type field struct {
	id    string
	value string
}

func concatFields(fields ...field) (string, error) {
	var b strings.Builder
	for _, f := range fields {
		if len(f.value) > 99 {
			return "", fmt.Errorf("%w: %s", ErrFieldTooLong, f.id)
		}
		fmt.Fprintf(&b, "%s%02d%s", f.id, len(f.value), f.value)
	}
	return b.String(), nil
}

// clean folds accents to ASCII, drops anything still outside printable ASCII
// and truncates to max characters.
func clean(value string, max int) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	var b strings.Builder
	for _, r := range strings.TrimSpace(folded) {
		if r >= 0x20 && r < 0x7F {
			b.WriteRune(r)
		}
		if b.Len() == max {
			break
		}
	}
	return b.String()
}
