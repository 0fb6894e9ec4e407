// Package linkcode генерирует короткие коды для привязки родителя к ученику
// и присоединения ученика к классу.
package linkcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet символы кода без легко путаемых 0/O и 1/I.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length длина кода.
const Length = 8

// New возвращает случайный код длины Length.
func New() (string, error) {
	const op = "linkcode.New"
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(Length)
	for range Length {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize приводит введённый пользователем код к каноническому виду.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid проверяет формат кода.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// AdmissionNumber формирует номер зачисления вида CODE-YEAR-0001.
func AdmissionNumber(orgCode string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", strings.ToUpper(orgCode), year, seq)
}

// OrgCode выводит короткий код организации из её названия: первые буквы слов
// либо, для коротких названий, первые буквы названия. Длина от трёх до шести символов.
func OrgCode(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(name) {
		r := []rune(strings.ToUpper(w))
		if len(r) > 0 && isLatinOrDigit(r[0]) {
			b.WriteRune(r[0])
		}
	}
	code := b.String()
	if len(code) < 3 {
		code = ""
		for _, r := range strings.ToUpper(name) {
			if len(code) >= 3 {
				break
			}
			if isLatinOrDigit(r) {
				code += string(r)
			}
		}
	}
	for len(code) < 3 {
		code += "X"
	}
	if len(code) > 6 {
		code = code[:6]
	}
	return code
}

func isLatinOrDigit(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
