package util

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// GetValidator devolve a instância compartilhada, com nomes de campo vindos da tag json.
func GetValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate valida a struct e agrupa as mensagens por campo. Devolve nil quando válida.
func Validate(v any) map[string][]string {
	err := GetValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"": {err.Error()}}
	}

	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = append(out[fe.Field()], message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " é obrigatório"
	case "min":
		if isNumber(fe.Kind()) {
			return fe.Field() + " deve ser no mínimo " + fe.Param()
		}
		return fe.Field() + " deve ter pelo menos " + fe.Param() + " caracteres"
	case "max":
		if isNumber(fe.Kind()) {
			return fe.Field() + " deve ser no máximo " + fe.Param()
		}
		return fe.Field() + " deve ter no máximo " + fe.Param() + " caracteres"
	case "len":
		return fe.Field() + " deve ter exatamente " + fe.Param() + " caractere(s)"
	case "oneof":
		return fe.Field() + " deve ser um de: " + fe.Param()
	case "alpha":
		return fe.Field() + " deve conter apenas letras de A a Z"
	case "nefield":
		return fe.Field() + " deve ser diferente de " + fe.Param()
	default:
		return fe.Field() + " é inválido"
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
