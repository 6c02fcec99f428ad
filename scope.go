package jobcue

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrRuleExists is returned by AddRule for a pattern already in the set
var ErrRuleExists = errors.New("rule already exists")

// Rule is a compiled path pattern of a Scope.
type Rule struct {
	Pattern *regexp.Regexp
}

// Scope decides which mutating requests may be deferred to the queue when
// connectivity is lost. Requests out of scope behave like reads and fail
// with ErrNoConnectivity instead. Exclusion rules take precedence over
// inclusion rules; paths matching neither fall back to DefaultAllow.
type Scope struct {
	mu           sync.RWMutex
	IncludeRules map[string]Rule // keyed by pattern
	ExcludeRules map[string]Rule // keyed by pattern
	DefaultAllow bool
}

// NewScope creates a Scope with no rules.
func NewScope(defaultAllow bool) *Scope {
	return &Scope{
		IncludeRules: make(map[string]Rule),
		ExcludeRules: make(map[string]Rule),
		DefaultAllow: defaultAllow,
	}
}

// Matches reports whether a mutating request to path may be deferred.
func (s *Scope) Matches(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.ExcludeRules {
		if rule.Pattern.MatchString(path) {
			return false
		}
	}
	for _, rule := range s.IncludeRules {
		if rule.Pattern.MatchString(path) {
			return true
		}
	}
	return s.DefaultAllow
}

// AddRule compiles pattern and adds it to the include or exclude set.
// A leading "-" on pattern also marks it as an exclusion.
func (s *Scope) AddRule(pattern string, exclude bool) error {
	if strings.HasPrefix(pattern, "-") {
		exclude = true
		pattern = strings.TrimPrefix(pattern, "-")
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern : %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.IncludeRules
	if exclude {
		rules = s.ExcludeRules
	}
	if _, exists := rules[compiled.String()]; exists {
		return fmt.Errorf("%w : %s", ErrRuleExists, compiled)
	}
	rules[compiled.String()] = Rule{Pattern: compiled}
	return nil
}

// RemoveRule removes pattern from the include or exclude set.
func (s *Scope) RemoveRule(pattern string, exclude bool) error {
	if strings.HasPrefix(pattern, "-") {
		exclude = true
		pattern = strings.TrimPrefix(pattern, "-")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.IncludeRules
	if exclude {
		rules = s.ExcludeRules
	}
	if _, exists := rules[pattern]; !exists {
		return fmt.Errorf("rule %s not found", pattern)
	}
	delete(rules, pattern)
	return nil
}

// ClearRules removes every rule.
func (s *Scope) ClearRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IncludeRules = make(map[string]Rule)
	s.ExcludeRules = make(map[string]Rule)
}
