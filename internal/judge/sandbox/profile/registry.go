package profile

import "fmt"

// Registry resolves languages to strategies built from configured toolchains.
type Registry struct {
	strategies map[Language]Strategy
}

// NewRegistry starts from DefaultToolchains and applies overrides keyed by language id.
// Unknown ids are rejected so a typo cannot silently disable a language.
func NewRegistry(overrides map[string]Toolchain) (*Registry, error) {
	toolchains := DefaultToolchains()
	for id, tc := range overrides {
		lang, err := ParseLanguage(id)
		if err != nil {
			return nil, err
		}
		merged := toolchains[lang]
		if tc.Extension != "" {
			merged.Extension = tc.Extension
		}
		if tc.Compile != "" {
			merged.Compile = tc.Compile
		}
		if tc.Run != "" {
			merged.Run = tc.Run
		}
		if tc.TimeMultiplier > 0 {
			merged.TimeMultiplier = tc.TimeMultiplier
		}
		if len(tc.Env) > 0 {
			merged.Env = tc.Env
		}
		toolchains[lang] = merged
	}

	r := &Registry{strategies: make(map[Language]Strategy, len(toolchains))}
	for lang, tc := range toolchains {
		s, err := newStrategy(lang, tc)
		if err != nil {
			return nil, err
		}
		r.strategies[lang] = s
	}
	return r, nil
}

// Strategy returns the strategy for a language id.
func (r *Registry) Strategy(id string) (Strategy, error) {
	lang, err := ParseLanguage(id)
	if err != nil {
		return nil, err
	}
	s, ok := r.strategies[lang]
	if !ok {
		return nil, fmt.Errorf("language %s is not configured", lang)
	}
	return s, nil
}
