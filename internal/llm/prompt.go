// Package llm holds the prompt templates for ADT-1 filings and the
// OpenAI-compatible chat backend used to run them.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"go.yaml.in/yaml/v3"
)

// Placeholder marks where the document text goes in a user template.
const Placeholder = "{{text}}"

// Template names.
const (
	Fields   = "fields"
	Summary  = "summary"
	Insights = "insights"
)

// Prompt is one fully rendered request.
type Prompt struct {
	Name   string
	System string
	User   string
}

// Completer sends a prompt to a model and returns its text response.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Template is a system message plus a user message containing Placeholder once.
type Template struct {
	Name   string `yaml:"-"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Render substitutes text into the template.
func (t Template) Render(text string) Prompt {
	return Prompt{
		Name:   t.Name,
		System: t.System,
		User:   strings.Replace(t.User, Placeholder, text, 1),
	}
}

func (t Template) validate() error {
	if strings.TrimSpace(t.User) == "" {
		return fmt.Errorf("template %q: %w: user message is empty", t.Name, failure.ErrConfiguration)
	}
	if n := strings.Count(t.User, Placeholder); n != 1 {
		return fmt.Errorf("template %q: %w: user message must contain %s exactly once, found %d", t.Name, failure.ErrConfiguration, Placeholder, n)
	}
	return nil
}

// Templates is the set of prompts a run sends, keyed by name.
type Templates map[string]Template

const fieldsSystemPrompt = "You're an assistant that extracts key data from Indian Form ADT-1 audit appointment forms."
const fieldsUserPrompt = `Given the content below, extract the following fields and return the result as valid JSON:

- company_name
- cin
- email_of_company
- audit_account_period
- registered_office
- appointment_date
- number_of_years_to_audit
- auditor_name
- auditor_address
- auditor_email
- auditor_frn_or_membership
- appointment_type

Use the values exactly as they appear in the document. Use null for a field that is not present.

Text:
{{text}}`

const summarySystemPrompt = "You're an AI assistant summarizing company filings in human-friendly language."
const summaryUserPrompt = `Based on the following Form ADT-1 filing, generate a clear, professional, and non-technical 3-5 line summary. Keep it concise and human-readable.
Focus on the key points: company name, auditor details, and appointment specifics.

Text:
{{text}}`

const insightsSystemPrompt = "You're an analyst reviewing a government form (Form ADT-1)."
const insightsUserPrompt = `Carefully review the full PDF content below and identify any significant information that wasn't captured in the standard fields. Focus on:

1. Appointment context (e.g., casual vacancy, reappointment, C&AG appointment)
2. Specific resolution or consent details
3. Approval details (board meeting, AGM, etc.)
4. Any irregularities, special notes, or regulatory flags
5. References to attachments or supporting documents

Format your response as clear, concise bullet points. Only include notable findings.

Text:
{{text}}`

// DefaultTemplates returns the built-in ADT-1 prompts.
func DefaultTemplates() Templates {
	return Templates{
		Fields:   {Name: Fields, System: fieldsSystemPrompt, User: fieldsUserPrompt},
		Summary:  {Name: Summary, System: summarySystemPrompt, User: summaryUserPrompt},
		Insights: {Name: Insights, System: insightsSystemPrompt, User: insightsUserPrompt},
	}
}

// LoadTemplates reads template overrides from a YAML file and merges them over
// the defaults. An empty path returns the defaults unchanged.
//
//	fields:
//	  system: "..."
//	  user: "... {{text}} ..."
func LoadTemplates(path string) (Templates, error) {
	templates := DefaultTemplates()
	if path == "" {
		return templates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts file %s: %w: %v", path, failure.ErrConfiguration, err)
	}

	var overrides map[string]Template
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing prompts file %s: %w: %v", path, failure.ErrConfiguration, err)
	}

	for name, o := range overrides {
		base, ok := templates[name]
		if !ok {
			return nil, fmt.Errorf("prompts file %s: %w: unknown template %q", path, failure.ErrConfiguration, name)
		}
		if o.System != "" {
			base.System = o.System
		}
		if o.User != "" {
			base.User = o.User
		}
		if err := base.validate(); err != nil {
			return nil, err
		}
		templates[name] = base
	}
	return templates, nil
}
