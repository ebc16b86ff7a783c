package delivery

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello world", 5))
	assert.Equal(t, "hi", Truncate("hi", 10))
	assert.Equal(t, "", Truncate("", 5))
	assert.Equal(t, "abcde", Truncate("abcde", 5))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestTruncateNeverSplitsCodePoints(t *testing.T) {
	s := "🎉🎊🎈🎁"
	got := Truncate(s, 3)
	assert.Equal(t, "🎉🎊🎈", got)
	assert.True(t, utf8.ValidString(got))

	mixed := "aé中🎉b"
	for n := 0; n <= 6; n++ {
		out := Truncate(mixed, n)
		assert.True(t, utf8.ValidString(out))
		assert.LessOrEqual(t, utf8.RuneCountInString(out), n)
	}
}

func TestTruncateIdempotent(t *testing.T) {
	for _, s := range []string{"", "short", strings.Repeat("ж", 50), "a🎉b🎉c🎉"} {
		for _, n := range []int{1, 3, 30} {
			once := Truncate(s, n)
			assert.Equal(t, once, Truncate(once, n))
		}
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	long := strings.Repeat("x", 31)
	assert.Equal(t, strings.Repeat("x", 30)+"...", Preview(long))
	assert.Equal(t, strings.Repeat("x", 30), Preview(strings.Repeat("x", 30)))
}
