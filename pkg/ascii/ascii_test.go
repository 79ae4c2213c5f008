package ascii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxAlignsMultiWidthRunes(t *testing.T) {
	box := Box([]string{"synced", "conflict: 日本語"})
	lines := strings.Split(strings.TrimRight(box, "\n"), "\n")
	assert.Len(t, lines, 4)
	width := StringWidth(lines[0])
	for _, l := range lines {
		assert.Equal(t, width, StringWidth(l))
	}
}

func TestBoxEmpty(t *testing.T) {
	assert.Equal(t, "", Box(nil))
}

func TestTruncateForBox(t *testing.T) {
	assert.Equal(t, "hello", TruncateForBox("hello", 10))
	assert.Equal(t, "he...", TruncateForBox("hello world", 5))
}

func TestPadColumns(t *testing.T) {
	rows := [][]string{
		{"target", "status"},
		{"repos/my-project", "synced"},
	}
	lines := PadColumns(rows)
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "target"))
}
