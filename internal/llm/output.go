package llm

import (
	"fmt"
	"strings"
)

// OutputSchema describes the JSON object a prompt asks the model to return.
type OutputSchema struct {
	Name   string
	Fields []SchemaField
}

// SchemaField defines a single field in the output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[\"string\"]"
	Description string
	Required    bool
}

// BuildStructuredPrompt appends the output contract for schema to instructions.
func BuildStructuredPrompt(instructions string, schema OutputSchema) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(instructions))
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "\"string\""
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")
	sb.WriteString("Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")

	return sb.String()
}

// ArticleOutputSchema is the contract for generated articles.
func ArticleOutputSchema() OutputSchema {
	return OutputSchema{
		Name: "Article",
		Fields: []SchemaField{
			{Name: "title", Description: "SEO title containing the keyword, at most 70 characters", Required: true},
			{Name: "meta_description", Description: "Search snippet, 120-160 characters", Required: true},
			{Name: "html", Description: "Article body as HTML using <h2>, <h3>, <p>, <ul>; no <html> or <body>", Required: true},
			{Name: "tags", Type: "[\"string\"]", Description: "3 to 8 short topic tags"},
			{Name: "image_prompts", Type: "[\"string\"]", Description: "One English prompt per requested illustration"},
		},
	}
}
