package idgen

import (
	"strings"
	"unicode"
)

// DeriveKey 라벨에서 파라미터 키를 생성합니다.
// 소문자 변환, 앞뒤 공백 제거, 내부 공백 묶음을 하이픈 하나로 바꾼 뒤
// [a-z0-9-] 이외의 문자는 모두 제거합니다.
func DeriveKey(label string) string {
	lowered := strings.TrimSpace(strings.ToLower(label))

	var b strings.Builder
	b.Grow(len(lowered))

	inSpace := false
	for _, r := range lowered {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidKey reports whether key is non-empty and already in derived form.
func IsValidKey(key string) bool {
	return key != "" && DeriveKey(key) == key
}

// DuplicateKeys returns every key that appears more than once, in order of
// its second occurrence.
func DuplicateKeys(keys []string) []string {
	seen := make(map[string]int, len(keys))
	var dups []string
	for _, k := range keys {
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}
