// Package address содержит утилиты для адресов демо-сети (SS58-подобный формат).
package address

import (
	"regexp"
	"strings"
)

const (
	DefaultStartChars = 6
	DefaultEndChars   = 4
)

// '5' + 47 символов Base58 без 0, I, O, l. Регистр важен.
var ss58Pattern = regexp.MustCompile(`^5[A-HJ-NP-Za-km-z1-9]{47}$`)

// Format сокращает адрес до вида "5GrwvaE...utQY" для логов и UI.
// Длина считается в символах, а не в байтах: адрес еще не проверен и может
// содержать что угодно. Слишком короткий (включая пустой) возвращается как есть.
func Format(address string, startChars, endChars int) string {
	runes := []rune(address)
	if startChars < 0 || endChars < 0 || len(runes) < startChars+endChars {
		return address
	}
	return string(runes[:startChars]) + "..." + string(runes[len(runes)-endChars:])
}

// FormatShort: Format с параметрами по умолчанию (6/4).
func FormatShort(address string) string {
	return Format(address, DefaultStartChars, DefaultEndChars)
}

// Validate проверяет формат адреса. Контрольная сумма SS58 не проверяется.
func Validate(address string) bool {
	return ss58Pattern.MatchString(address)
}

// ParseList разбирает ввод вида "a, b,,c" в ["a","b","c"], сохраняя порядок.
// Дубликаты не удаляются.
func ParseList(input string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(input, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
