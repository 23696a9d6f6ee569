package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	resetCache()

	prompt, err := Get(ArticlesFile, "article-general")
	require.NoError(t, err)
	assert.Contains(t, prompt, "{{.Keyword}}")
}

func TestGet_InvalidFile(t *testing.T) {
	resetCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	resetCache()

	_, err := Get(ArticlesFile, "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFormat(t *testing.T) {
	out := Format("{{.A}} and {{.B}} and {{.A}}", map[string]string{"A": "x"})
	assert.Equal(t, "x and {{.B}} and x", out)
}

func TestRender(t *testing.T) {
	out, err := Render(ImagesFile, "fallback", map[string]string{"Keyword": "trail shoes"})
	require.NoError(t, err)
	assert.Contains(t, out, `"trail shoes"`)
	assert.NotContains(t, out, "{{")

	_, err = Render(ArticlesFile, "article-general", map[string]string{"Keyword": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MinWords")
}

func TestList(t *testing.T) {
	keys, err := List(ArticlesFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"article-general", "article-promotional", "system"}, keys)
}

func TestAllTemplatesParse(t *testing.T) {
	for _, file := range []string{ArticlesFile, ImagesFile} {
		keys, err := List(file)
		require.NoError(t, err)
		assert.NotEmpty(t, keys, file)
	}
}
