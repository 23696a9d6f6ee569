package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jonathan/seo-autopilot/internal/schemas"
	"github.com/jonathan/seo-autopilot/internal/types"
	"gopkg.in/yaml.v3"
)

type scheduleFile struct {
	Schedules []types.Schedule `json:"schedules"`
}

type keywordFile struct {
	Keywords []types.Keyword `json:"keywords"`
}

// readDocument reads a YAML (or JSON) file, checks it against the named
// schema and decodes it into v.
func readDocument(path, schema string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return decodeDocument(raw, schema, v)
}

func decodeDocument(raw []byte, schema string, v any) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return &types.ValidationError{Field: "file", Message: "invalid YAML: " + err.Error()}
	}
	if doc == nil {
		return &types.ValidationError{Field: "file", Message: "document is empty"}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return &types.ValidationError{Field: "file", Message: err.Error()}
	}
	if err := schemas.Validate(schema, data); err != nil {
		var verr *schemas.ValidationError
		if errors.As(err, &verr) {
			return &types.ValidationError{Field: "file", Message: verr.Summary()}
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// scheduleUpserter is satisfied by *schedule.Engine.
type scheduleUpserter interface {
	Upsert(ctx context.Context, def *types.Schedule) (int64, error)
}

// applySchedules upserts every schedule in the file by name. It stops at
// the first invalid definition.
func applySchedules(ctx context.Context, engine scheduleUpserter, path string) (int, error) {
	var file scheduleFile
	if err := readDocument(path, schemas.Schedules, &file); err != nil {
		return 0, err
	}
	for i := range file.Schedules {
		def := &file.Schedules[i]
		if _, err := engine.Upsert(ctx, def); err != nil {
			return i, fmt.Errorf("schedule %q: %w", def.Name, err)
		}
	}
	return len(file.Schedules), nil
}

type keywordUpserter interface {
	UpsertKeyword(ctx context.Context, kw *types.Keyword) (*types.Keyword, error)
}

// importKeywords upserts every keyword in the file. Re-importing a keyword
// refreshes its metrics and keeps its usage history.
func importKeywords(ctx context.Context, store keywordUpserter, path string) (int, error) {
	var file keywordFile
	if err := readDocument(path, schemas.Keywords, &file); err != nil {
		return 0, err
	}
	for i := range file.Keywords {
		kw := &file.Keywords[i]
		if _, err := store.UpsertKeyword(ctx, kw); err != nil {
			return i, fmt.Errorf("keyword %q: %w", kw.Text, err)
		}
	}
	return len(file.Keywords), nil
}
