package profile

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseLanguage(t *testing.T) {
	cases := map[string]Language{
		"python":  Python,
		"Python3": Python,
		" cpp ":   Cpp,
		"c++":     Cpp,
		"c":       C,
		"JAVA":    Java,
	}
	for in, want := range cases {
		got, err := ParseLanguage(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s %v", in, want, got, err)
		}
	}

	_, err := ParseLanguage("rust")
	var unsupported ErrUnsupportedLanguage
	if !errors.As(err, &unsupported) || unsupported.ID != "rust" {
		t.Fatalf("expected unsupported language error, got %v", err)
	}
}

func TestLanguageClasses(t *testing.T) {
	if Python.Class() != ClassInterpreted || Cpp.Class() != ClassNative || C.Class() != ClassNative || Java.Class() != ClassJVM {
		t.Fatalf("unexpected class binding")
	}
}

func TestJavaClassName(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{"public class Solution { public static void main(String[] a) {} }", "Solution"},
		{"import java.util.*;\npublic   class\tFoo_1 {}", "Foo_1"},
		{"class Hidden {}", "Main"},
		{"", "Main"},
	}
	for _, tc := range cases {
		if got := JavaClassName(tc.code); got != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, got)
		}
	}
}

func TestDefaultStrategies(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	py, _ := reg.Strategy("python")
	if py.CompileCommand("print(1)") != nil {
		t.Fatalf("expected python to have no compile step")
	}
	if got := py.RunCommand(""); !reflect.DeepEqual(got, []string{"python3", "solution.py"}) {
		t.Fatalf("unexpected python run command: %v", got)
	}

	cpp, _ := reg.Strategy("cpp")
	if got := cpp.CompileCommand(""); !reflect.DeepEqual(got, []string{"g++", "-O2", "-std=c++17", "-o", "solution", "solution.cpp"}) {
		t.Fatalf("unexpected cpp compile command: %v", got)
	}
	if got := cpp.RunCommand(""); !reflect.DeepEqual(got, []string{"./solution"}) {
		t.Fatalf("unexpected cpp run command: %v", got)
	}

	java, _ := reg.Strategy("java")
	code := "public class Sum { }"
	if java.SourceFile(code) != "Sum.java" {
		t.Fatalf("expected Sum.java, got %s", java.SourceFile(code))
	}
	if got := java.RunCommand(code); !reflect.DeepEqual(got, []string{"java", "-cp", ".", "Sum"}) {
		t.Fatalf("unexpected java run command: %v", got)
	}
	if java.TimeMultiplier() != 1 {
		t.Fatalf("expected default multiplier 1, got %v", java.TimeMultiplier())
	}
}

func TestRegistryOverrides(t *testing.T) {
	reg, err := NewRegistry(map[string]Toolchain{
		"c++":  {Compile: "clang++ -O2 -o {bin} {src}", TimeMultiplier: 1.5},
		"java": {Run: `java -Xss64m -cp . "{class}"`},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	cpp, _ := reg.Strategy("cpp")
	if cpp.CompileCommand("")[0] != "clang++" || cpp.TimeMultiplier() != 1.5 {
		t.Fatalf("expected cpp override applied")
	}
	java, _ := reg.Strategy("java")
	if got := java.RunCommand(""); !reflect.DeepEqual(got, []string{"java", "-Xss64m", "-cp", ".", "Main"}) {
		t.Fatalf("unexpected java run command: %v", got)
	}
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]Toolchain
	}{
		{"unknown language", map[string]Toolchain{"go": {Run: "go run {src}"}}},
		{"interpreted with compile", map[string]Toolchain{"python": {Compile: "pyc {src}"}}},
		{"unterminated quote", map[string]Toolchain{"c": {Run: `"./{bin}`}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.overrides); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
