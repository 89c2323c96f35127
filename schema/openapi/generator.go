// Package openapi publishes the settings of a definition container as an
// OpenAPI document whose request body accepts setting values.
package openapi

import (
	"fmt"
	"regexp"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/layering"
)

var componentName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Generate builds an OpenAPI document for the settings defined by c. Each
// setting becomes a property of the component schema named after c, with
// formula bounds resolved against the definition defaults.
func Generate(c *settings.DefinitionContainer, opts ...GeneratorOption) (map[string]any, error) {
	if c == nil {
		return nil, fmt.Errorf("openapi: definition container cannot be nil")
	}
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg = cfg.resolve(c)

	name := componentName.ReplaceAllString(c.ID(), "_")
	if name == "" {
		return nil, fmt.Errorf("openapi: definition container has no id")
	}

	document := map[string]any{
		"openapi": openAPIVersion,
		"info":    buildInfo(cfg),
		"paths":   buildPaths(cfg, "#/components/schemas/"+name),
		"components": map[string]any{
			"schemas": map[string]any{
				name: SchemaFor(c),
			},
		},
	}
	return document, nil
}

// SchemaFor returns the object schema for the settings of c. Categories are
// flattened away since setting keys are unique across the tree.
func SchemaFor(c *settings.DefinitionContainer) map[string]any {
	properties := map[string]any{}
	for _, field := range settings.DescribeDefinitions(c) {
		if field.Type == "category" {
			continue
		}
		properties[field.Key] = propertySchema(c, field)
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if c.Name() != "" {
		schema["title"] = c.Name()
	}
	return schema
}

func propertySchema(c *settings.DefinitionContainer, field settings.FieldDescriptor) map[string]any {
	schema := typeSchema(field.Type)
	if field.Label != "" {
		schema["title"] = field.Label
	}
	if description, ok := c.Property(field.Key, "description").(string); ok && description != "" {
		schema["description"] = description
	}
	if field.Default != nil {
		schema["default"] = plain(field.Default)
	}
	if field.Unit != "" {
		schema["x-unit"] = field.Unit
	}
	if field.Formula != "" {
		schema["x-formula"] = field.Formula
	}

	if field.Type == "enum" {
		if options, ok := c.Property(field.Key, "options").(*layering.Document); ok {
			values := make([]any, 0, options.Len())
			for _, key := range options.Keys() {
				values = append(values, key)
			}
			schema["enum"] = values
		}
	}
	if schema["type"] == "integer" || schema["type"] == "number" {
		for property, keyword := range map[string]string{
			"minimum_value": "minimum",
			"maximum_value": "maximum",
		} {
			if bound, ok := number(c.Property(field.Key, property)); ok {
				schema[keyword] = bound
			}
		}
	}
	return schema
}

func typeSchema(settingType string) map[string]any {
	switch settingType {
	case "int":
		return map[string]any{"type": "integer"}
	case "float":
		return map[string]any{"type": "number"}
	case "bool":
		return map[string]any{"type": "boolean"}
	case "polygon":
		return map[string]any{"type": "array", "items": point()}
	case "polygons":
		return map[string]any{"type": "array", "items": map[string]any{"type": "array", "items": point()}}
	case "[int]":
		return map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}
	default:
		return map[string]any{"type": "string"}
	}
}

func point() map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "number"},
		"minItems": 2,
		"maxItems": 2,
	}
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func plain(value any) any {
	if doc, ok := value.(*layering.Document); ok {
		return doc.ToMap()
	}
	return value
}

func buildInfo(cfg generatorConfig) map[string]any {
	return map[string]any{
		"title":   cfg.title,
		"version": cfg.version,
	}
}

func buildPaths(cfg generatorConfig, ref string) map[string]any {
	operation := map[string]any{
		"operationId": cfg.operationID(),
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": ref},
				},
			},
		},
		"responses": map[string]any{
			"204": map[string]any{"description": "Values stored"},
			"422": map[string]any{"description": "A value failed validation"},
		},
	}
	return map[string]any{
		cfg.path: map[string]any{
			cfg.method: operation,
		},
	}
}
