package lexicon

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin_Lookup_Found(t *testing.T) {
	lex, err := Builtin()
	require.NoError(t, err)
	require.Greater(t, lex.Len(), 100)

	e := lex.Lookup("Light")
	assert.False(t, e.Estimated)
	assert.Equal(t, "S", e.Primary())

	e = lex.Lookup("the")
	assert.False(t, e.Estimated)
	assert.Equal(t, "U", e.Primary())
}

func TestLookup_Estimated(t *testing.T) {
	lex := New(nil)

	e := lex.Lookup("zorblefrax")
	assert.True(t, e.Estimated)
	assert.True(t, ValidPattern(e.Primary()))
}

func TestLookup_Possessive(t *testing.T) {
	lex := New(map[string][]string{"summer": {"SU"}})

	e := lex.Lookup("summer's")
	assert.False(t, e.Estimated)
	assert.Equal(t, "SU", e.Primary())

	e = lex.Lookup("summer’s")
	assert.False(t, e.Estimated, "typographic apostrophe should fold")
}

func TestNew_DropsInvalidPatterns(t *testing.T) {
	lex := New(map[string][]string{
		"good":  {"S", "x", ""},
		"bad":   {"SX"},
		"Caps":  {"S"},
		"empty": nil,
	})
	assert.Equal(t, 2, lex.Len())
	assert.Equal(t, []string{"S"}, lex.Lookup("good").Patterns)
	assert.False(t, lex.Lookup("caps").Estimated)
	assert.True(t, lex.Lookup("bad").Estimated)
}

func TestEntry_Alternates(t *testing.T) {
	e := Found([]string{"SU", "US", "SUU"})
	assert.Equal(t, []string{"US"}, e.Alternates())
	assert.Empty(t, Estimated("S").Alternates())
}

func TestLoad_ExtraOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()

	dictPath := filepath.Join(dir, "dict.json.gz")
	f, err := os.Create(dictPath)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	require.NoError(t, json.NewEncoder(gz).Encode(map[string][]string{"quietude": {"SUU"}}))
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	extraPath := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(extraPath, []byte("light: [U]\nsonnet: [SU]\n"), 0o644))

	lex, err := Load(dictPath, extraPath)
	require.NoError(t, err)

	assert.Equal(t, "SUU", lex.Lookup("quietude").Primary())
	assert.Equal(t, "U", lex.Lookup("light").Primary())
	assert.Equal(t, "SU", lex.Lookup("sonnet").Primary())
	assert.False(t, lex.Lookup("dark").Estimated)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)
}

func TestEstimateSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"cat", 1},
		{"glance", 1},
		{"table", 2},
		{"entwined", 2},
		{"wanted", 2},
		{"naked", 2},
		{"trampled", 2},
		{"heaven", 1},
		{"every", 2},
		{"o'er", 1},
		{"beautiful", 3},
		{"", 0},
		{"123", 0},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateSyllables(tt.word))
		})
	}
}

func TestEstimateStressPattern(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"the", "U"},
		{"blick", "S"},
		{"nation", "US"},
		{"walking", "SU"},
		{"garden", "SU"},
		{"into", "US"},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateStressPattern(tt.word))
		})
	}
}

func TestFunctionWordSets(t *testing.T) {
	assert.True(t, IsUnstressedFunctionWord("The"))
	assert.False(t, IsUnstressedFunctionWord("thy"))
	assert.True(t, IsFunctionWord("thy"))
	assert.True(t, IsFlexibleFunctionWord("shall"))
	assert.False(t, IsFunctionWord("rose"))
}

func TestVowelGroups_DropsSilentE(t *testing.T) {
	assert.Equal(t, [][2]int{{2, 3}}, VowelGroups("glance", 1))
	assert.Equal(t, [][2]int{{1, 2}, {4, 5}}, VowelGroups("garden", 2))
}

func TestBuildPattern(t *testing.T) {
	assert.Equal(t, "USU", BuildPattern(3, 1))
	assert.Equal(t, "UUS", BuildPattern(3, 9))
	assert.Equal(t, "", BuildPattern(0, 0))
}
