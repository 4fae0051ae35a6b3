// Package validation: правила проверки форм дашборда гардианов.
// Правило возвращает текст ошибки или пустую строку, если значение корректно.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xela07ax/guardian-demo/internal/domain"
)

type Rule func(value string) string

var (
	emailRe      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	substrateRe  = regexp.MustCompile(`^[1-5KL][1-9A-HJ-NP-Z]{46}$`)
	ethAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
)

func Required(value string) string {
	if value == "" {
		return "This field is required"
	}
	return ""
}

func MinLength(min int) Rule {
	return func(value string) string {
		if len(value) < min {
			return fmt.Sprintf("Must be at least %d characters", min)
		}
		return ""
	}
}

func MaxLength(max int) Rule {
	return func(value string) string {
		if len(value) > max {
			return fmt.Sprintf("Must be no more than %d characters", max)
		}
		return ""
	}
}

// Email, Address и DID пропускают пустое значение: обязательность задает Required.

func Email(value string) string {
	if value == "" || emailRe.MatchString(value) {
		return ""
	}
	return "Must be a valid email address"
}

// Address: упрощенная проверка: Substrate (без строчных букв) или 0x-адрес.
func Address(value string) string {
	if value == "" || substrateRe.MatchString(value) || ethAddressRe.MatchString(value) {
		return ""
	}
	return "Must be a valid blockchain address"
}

func DID(value string) string {
	if value == "" || strings.HasPrefix(value, "did:") {
		return ""
	}
	return "Must be a valid DID (Decentralized Identifier)"
}

// OneOf пропускает только перечисленные значения.
func OneOf(allowed ...string) Rule {
	return func(value string) string {
		for _, a := range allowed {
			if value == a {
				return ""
			}
		}
		return fmt.Sprintf("Must be one of: %s", strings.Join(allowed, ", "))
	}
}

type Field struct {
	Name  string
	Rules []Rule
}

func F(name string, rules ...Rule) Field {
	return Field{Name: name, Rules: rules}
}

// Validator прогоняет цепочки правил по полям. Для каждого поля
// фиксируется только первая ошибка.
type Validator struct {
	fields []Field
}

func New(fields ...Field) *Validator {
	return &Validator{fields: fields}
}

// Errors: ошибки по полям; пустая карта означает успех.
type Errors map[string]string

func (v *Validator) Validate(values map[string]string) Errors {
	errs := Errors{}
	for _, f := range v.fields {
		for _, rule := range f.Rules {
			if msg := rule(values[f.Name]); msg != "" {
				errs[f.Name] = msg
				break
			}
		}
	}
	return errs
}

// Check возвращает *domain.ValidationError для первого (в порядке объявления) поля с ошибкой.
func (v *Validator) Check(values map[string]string) error {
	errs := v.Validate(values)
	for _, f := range v.fields {
		if msg, ok := errs[f.Name]; ok {
			return domain.NewValidationError(f.Name, msg)
		}
	}
	return nil
}
