package profile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

const (
	sourceBase  = "solution"
	binaryName  = "solution"
	defaultJava = "Main"
)

var javaClassPattern = regexp.MustCompile(`public\s+class\s+(\w+)`)

// Toolchain is the configurable part of a language: command templates and tuning.
// Templates may reference {src}, {bin} and {class}; commands run inside the workspace.
type Toolchain struct {
	Extension      string   `yaml:"extension"`
	Compile        string   `yaml:"compile"`
	Run            string   `yaml:"run"`
	TimeMultiplier float64  `yaml:"timeMultiplier"`
	Env            []string `yaml:"env"`
}

// DefaultToolchains returns the stock toolchains for every supported language.
func DefaultToolchains() map[Language]Toolchain {
	return map[Language]Toolchain{
		Python: {Extension: ".py", Run: "python3 {src}"},
		Cpp:    {Extension: ".cpp", Compile: "g++ -O2 -std=c++17 -o {bin} {src}", Run: "./{bin}"},
		C:      {Extension: ".c", Compile: "gcc -O2 -std=c11 -o {bin} {src} -lm", Run: "./{bin}"},
		Java:   {Extension: ".java", Compile: "javac -encoding UTF-8 {src}", Run: "java -cp . {class}"},
	}
}

// Strategy knows how to turn source code into compile and run commands.
type Strategy interface {
	Language() Language
	SourceFile(code string) string
	// CompileCommand returns nil when the language has no compile step.
	CompileCommand(code string) []string
	RunCommand(code string) []string
	TimeMultiplier() float64
	Env() []string
}

type baseStrategy struct {
	lang       Language
	extension  string
	compile    []string
	run        []string
	multiplier float64
	env        []string
}

func (s *baseStrategy) Language() Language      { return s.lang }
func (s *baseStrategy) TimeMultiplier() float64 { return s.multiplier }
func (s *baseStrategy) Env() []string           { return s.env }

func (s *baseStrategy) SourceFile(string) string {
	return sourceBase + s.extension
}

func (s *baseStrategy) expand(tpl []string, src, class string) []string {
	if len(tpl) == 0 {
		return nil
	}
	r := strings.NewReplacer("{src}", src, "{bin}", binaryName, "{class}", class)
	out := make([]string, len(tpl))
	for i, tok := range tpl {
		out[i] = r.Replace(tok)
	}
	return out
}

type interpretedStrategy struct{ baseStrategy }

func (s *interpretedStrategy) CompileCommand(string) []string { return nil }

func (s *interpretedStrategy) RunCommand(code string) []string {
	return s.expand(s.run, s.SourceFile(code), "")
}

type nativeStrategy struct{ baseStrategy }

func (s *nativeStrategy) CompileCommand(code string) []string {
	return s.expand(s.compile, s.SourceFile(code), "")
}

func (s *nativeStrategy) RunCommand(code string) []string {
	return s.expand(s.run, s.SourceFile(code), "")
}

type jvmStrategy struct{ baseStrategy }

// SourceFile is named after the public class, as javac requires.
func (s *jvmStrategy) SourceFile(code string) string {
	return JavaClassName(code) + s.extension
}

func (s *jvmStrategy) CompileCommand(code string) []string {
	return s.expand(s.compile, s.SourceFile(code), JavaClassName(code))
}

func (s *jvmStrategy) RunCommand(code string) []string {
	return s.expand(s.run, s.SourceFile(code), JavaClassName(code))
}

// JavaClassName returns the first public class name, or Main.
func JavaClassName(code string) string {
	if m := javaClassPattern.FindStringSubmatch(code); len(m) == 2 {
		return m[1]
	}
	return defaultJava
}

func newStrategy(lang Language, tc Toolchain) (Strategy, error) {
	run, err := splitTemplate(tc.Run)
	if err != nil {
		return nil, fmt.Errorf("%s run template: %w", lang, err)
	}
	if len(run) == 0 {
		return nil, fmt.Errorf("%s run template is required", lang)
	}
	compile, err := splitTemplate(tc.Compile)
	if err != nil {
		return nil, fmt.Errorf("%s compile template: %w", lang, err)
	}
	if tc.Extension == "" {
		return nil, fmt.Errorf("%s extension is required", lang)
	}
	multiplier := tc.TimeMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	base := baseStrategy{
		lang:       lang,
		extension:  tc.Extension,
		compile:    compile,
		run:        run,
		multiplier: multiplier,
		env:        tc.Env,
	}
	switch lang.Class() {
	case ClassInterpreted:
		if len(compile) > 0 {
			return nil, fmt.Errorf("%s is interpreted and cannot have a compile step", lang)
		}
		return &interpretedStrategy{base}, nil
	case ClassNative:
		if len(compile) == 0 {
			return nil, fmt.Errorf("%s compile template is required", lang)
		}
		return &nativeStrategy{base}, nil
	default:
		if len(compile) == 0 {
			return nil, fmt.Errorf("%s compile template is required", lang)
		}
		return &jvmStrategy{base}, nil
	}
}

func splitTemplate(tpl string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, nil
	}
	return shlex.Split(tpl)
}
