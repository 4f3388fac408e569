package cmds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstBlockText(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"heading", "# Title\n\nbody", "Title"},
		{"emphasis", "some **bold** and `code`", "some bold and code"},
		{"fenced", "```go\nfunc main() {}\n```\n\nafter", "[go block]"},
		{"rule first", "---\n\ntext", "text"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstBlockText(tt.md))
		})
	}
}
