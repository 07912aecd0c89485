package model

import (
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(def, val any) any {
		if val == nil || val == "" {
			return def
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	},
}

// Render expands {{ .key }} references in the request's instructions and
// prompt from Vars. Text without template markers is returned unchanged.
func (r Request) Render() (Request, error) {
	var err error

	if r.Instructions, err = render("instructions", r.Instructions, r.Vars); err != nil {
		return r, err
	}
	if r.Prompt, err = render("prompt", r.Prompt, r.Vars); err != nil {
		return r, err
	}

	return r, nil
}

func render(name, text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}

	return sb.String(), nil
}
