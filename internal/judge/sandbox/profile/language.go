// Package profile binds the supported languages to their execution strategies.
package profile

import (
	"fmt"
	"strings"
)

// Language is the closed set of submission languages.
type Language string

const (
	Python Language = "python"
	Cpp    Language = "cpp"
	C      Language = "c"
	Java   Language = "java"
)

// Languages lists every supported language in display order.
var Languages = []Language{Python, Java, Cpp, C}

var aliases = map[string]Language{
	"python":  Python,
	"python3": Python,
	"py":      Python,
	"cpp":     Cpp,
	"c++":     Cpp,
	"cxx":     Cpp,
	"c":       C,
	"java":    Java,
}

// ErrUnsupportedLanguage is returned for ids outside the closed set.
type ErrUnsupportedLanguage struct {
	ID string
}

func (e ErrUnsupportedLanguage) Error() string {
	return fmt.Sprintf("unsupported language: %s", e.ID)
}

// ParseLanguage normalizes a client supplied language id.
func ParseLanguage(id string) (Language, error) {
	if lang, ok := aliases[strings.ToLower(strings.TrimSpace(id))]; ok {
		return lang, nil
	}
	return "", ErrUnsupportedLanguage{ID: id}
}

// Class is the execution class a language belongs to.
type Class string

const (
	ClassInterpreted Class = "interpreted"
	ClassNative      Class = "native"
	ClassJVM         Class = "jvm"
)

// Class returns the fixed execution class of l.
func (l Language) Class() Class {
	switch l {
	case Cpp, C:
		return ClassNative
	case Java:
		return ClassJVM
	default:
		return ClassInterpreted
	}
}
