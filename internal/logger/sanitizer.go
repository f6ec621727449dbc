package logger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Sanitizer 處理日誌中來自對等節點的不可信字串
//
// 對等節點可以送出任意 remote_name 與 filepath，其中可能含有換行或
// 終端控制字元。Sanitize 會將控制字元轉為 Go 跳脫表示，避免偽造日誌行。
// 自訂規則（AddRule）在跳脫之後套用。
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []SanitizeRule
}

// SanitizeRule 單一過濾規則
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// NewSanitizer 建立預設 sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Sanitize escapes control characters then applies custom rules
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := escapeControl(input)
	for _, rule := range s.patterns {
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
	}
	return result
}

// SanitizeArgs sanitizes string and error values of logging arguments.
// Keys are left untouched; other value types pass through.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 1; i < len(result); i += 2 {
		switch v := result[i].(type) {
		case string:
			result[i] = s.Sanitize(v)
		case error:
			if msg := v.Error(); needsEscape(msg) {
				result[i] = s.Sanitize(msg)
			}
		}
	}
	return result
}

// AddRule 新增自訂過濾規則
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}

func needsEscape(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

func escapeControl(s string) string {
	if !needsEscape(s) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			q := strconv.QuoteRune(r)
			b.WriteString(q[1 : len(q)-1])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
