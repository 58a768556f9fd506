package markdown

import (
	"testing"
)

func TestPoemText(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{
			name: "stanzas keep line breaks",
			md:   "# Sonnet\n\nShall I compare thee\nto a summer's day?\n\nThou art more *lovely*\nand more temperate\n",
			want: "Shall I compare thee\nto a summer's day?\n\nThou art more lovely\nand more temperate",
		},
		{
			name: "hard breaks",
			md:   "first line  \nsecond line\n",
			want: "first line\nsecond line",
		},
		{
			name: "code and rules dropped",
			md:   "verse one\n\n```\nnot verse\n```\n\n---\n\nverse two\n",
			want: "verse one\n\nverse two",
		},
		{
			name: "crlf input",
			md:   "one\r\ntwo\r\n",
			want: "one\ntwo",
		},
		{
			name: "empty",
			md:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PoemText([]byte(tt.md))
			if got != tt.want {
				t.Errorf("PoemText() = %q, want %q", got, tt.want)
			}
		})
	}
}
