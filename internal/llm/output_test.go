package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildStructuredPrompt(t *testing.T) {
	prompt := BuildStructuredPrompt("  Write about trail shoes.  ", ArticleOutputSchema())

	assert.True(t, strings.HasPrefix(prompt, "Write about trail shoes.\n\n"))
	assert.Contains(t, prompt, `"title": "string" (required)`)
	assert.Contains(t, prompt, `"tags": ["string"] //`)
	assert.Contains(t, prompt, "Return ONLY the JSON object")

	// last field has no trailing comma
	assert.NotContains(t, prompt, "illustration,\n}")
}
