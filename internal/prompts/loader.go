// Package prompts provides the embedded prompt templates used to write
// articles and illustrations. Templates use {{.Key}} placeholders.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Prompt files
const (
	ArticlesFile = "articles.json"
	ImagesFile   = "images.json"
)

//go:embed *.json
var promptFiles embed.FS

// parsed prompt files by name
var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

var placeholderRe = regexp.MustCompile(`\{\{\.([A-Za-z0-9_]+)\}\}`)

// Get retrieves a prompt by filename and key.
func Get(filename, key string) (string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return "", err
	}

	prompt, exists := prompts[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}

	return prompt, nil
}

// Format replaces {{.Key}} placeholders with values from data.
// Unknown placeholders are left in place.
func Format(template string, data map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := data[name]; ok {
			return v
		}
		return m
	})
}

// Render loads a template and fills it. Every placeholder must have a value.
func Render(filename, key string, data map[string]string) (string, error) {
	template, err := Get(filename, key)
	if err != nil {
		return "", err
	}

	out := Format(template, data)
	if missing := placeholderRe.FindAllStringSubmatch(out, -1); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, m[1])
		}
		return "", fmt.Errorf("prompt %s/%s missing values for %s", filename, key, strings.Join(names, ", "))
	}
	return out, nil
}

// loadFile loads and caches a prompt file.
func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	if prompts, exists := cache[filename]; exists {
		cacheMu.RUnlock()
		return prompts, nil
	}
	cacheMu.RUnlock()

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = prompts
	cacheMu.Unlock()

	return prompts, nil
}

func resetCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]string)
	cacheMu.Unlock()
}

// List returns the prompt keys in a file, sorted.
func List(filename string) ([]string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(prompts))
	for key := range prompts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
