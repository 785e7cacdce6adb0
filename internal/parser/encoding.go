package parser

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/japanese"
)

// Codec is one candidate text encoding for files that do not declare theirs.
type Codec struct {
	Name   string
	Decode func([]byte) (string, error)
}

// DecodeError reports a file that none of the candidate encodings could decode.
type DecodeError struct {
	File  string
	Tried []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("parser: cannot decode %s with any of [%s]", e.File, strings.Join(e.Tried, ", "))
}

// OfficeCodecs is the ordered candidate list for JIGYOSYO files: plain Shift_JIS
// first, then the Windows-31J (CP932) vendor variant.
var OfficeCodecs = []Codec{
	{Name: "shift_jis", Decode: decodeShiftJISStrict},
	{Name: "cp932", Decode: decodeCP932},
}

// decodeWith tries codecs in order; the first successful decode wins.
func decodeWith(path string, raw []byte, codecs []Codec) (string, string, error) {
	tried := make([]string, 0, len(codecs))
	for _, c := range codecs {
		text, err := c.Decode(raw)
		if err == nil {
			return text, c.Name, nil
		}
		tried = append(tried, c.Name)
	}
	return "", "", &DecodeError{File: path, Tried: tried}
}

// decodeCP932 decodes Windows-31J. The x/text decoder substitutes U+FFFD for
// invalid sequences, which never occurs in valid postal data.
func decodeCP932(raw []byte) (string, error) {
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(string(out), '\uFFFD') {
		return "", fmt.Errorf("invalid cp932 sequence")
	}
	return string(out), nil
}

// decodeShiftJISStrict accepts only JIS X 0208 Shift_JIS: double-byte sequences
// whose lead byte belongs to the NEC special row (0x87) or the vendor/user
// ranges 0xED..0xFC are rejected.
func decodeShiftJISStrict(raw []byte) (string, error) {
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		switch {
		case b < 0x80 || (b >= 0xA1 && b <= 0xDF):
		case (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xFC):
			if b == 0x87 || b >= 0xED {
				return "", fmt.Errorf("vendor extension lead byte 0x%X at offset %d", b, i)
			}
			i++
		default:
			return "", fmt.Errorf("invalid shift_jis byte 0x%X at offset %d", b, i)
		}
	}
	return decodeCP932(raw)
}
