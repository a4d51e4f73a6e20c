package formschema

import (
	"errors"
	"regexp"

	"github.com/getkin/kin-openapi/openapi3"
)

var (
	cepPattern   = `^\d{5}-?\d{3}$`
	phonePattern = `^\(?\d{2}\)?\s?9?\d{4}-?\d{4}$`
	cpfMask      = regexp.MustCompile(`^\d{3}\.?\d{3}\.?\d{3}-?\d{2}$`)

	errCPFShape  = errors.New("cpf must have 11 digits")
	errCPFDigits = errors.New("cpf check digits do not match")
)

func init() {
	openapi3.DefineStringFormatValidator(FormatEmail, openapi3.NewRegexpFormatValidator(openapi3.FormatOfStringForEmail))
	openapi3.DefineStringFormatValidator(FormatCEP, openapi3.NewRegexpFormatValidator(cepPattern))
	openapi3.DefineStringFormatValidator(FormatPhone, openapi3.NewRegexpFormatValidator(phonePattern))
	openapi3.DefineStringFormatValidator(FormatCPF, openapi3.NewCallbackValidator(ValidCPF))
}

// ValidCPF checks the shape and both check digits of a CPF number. Masked
// (000.000.000-00) and bare forms are accepted.
func ValidCPF(s string) error {
	if !cpfMask.MatchString(s) {
		return errCPFShape
	}
	digits := make([]int, 0, 11)
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}

	same := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			same = false
			break
		}
	}
	if same {
		return errCPFDigits
	}

	if checkDigit(digits[:9]) != digits[9] || checkDigit(digits[:10]) != digits[10] {
		return errCPFDigits
	}
	return nil
}

func checkDigit(digits []int) int {
	sum := 0
	weight := len(digits) + 1
	for _, d := range digits {
		sum += d * weight
		weight--
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		return 0
	}
	return rem
}
