package ollama

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmylchreest/qguard/pkg/quality"
)

// ErrNoCode is returned when a response contains nothing that looks like code.
var ErrNoCode = errors.New("no code found in model response")

// Reviser asks the model to fix a candidate's issues. It implements
// refine.Collaborator for one language.
type Reviser struct {
	client   *Client
	language string
}

// NewReviser binds client to the language of the candidates it will revise.
func NewReviser(client *Client, language string) *Reviser {
	return &Reviser{client: client, language: language}
}

// Revise returns the model's improved version of code.
func (r *Reviser) Revise(ctx context.Context, code string, issues []quality.Issue) (string, error) {
	resp, err := r.client.Generate(ctx, BuildPrompt(r.language, code, issues))
	if err != nil {
		return "", err
	}
	revised := ExtractCode(resp)
	if revised == "" {
		return "", ErrNoCode
	}
	return revised, nil
}

// BuildPrompt renders the improvement request. The prompt ends inside an
// open code fence so the model continues with code.
func BuildPrompt(language, code string, issues []quality.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Improve this %s code by fixing the following issues:\n\n", language)
	b.WriteString("Issues to fix:\n")
	for _, iss := range issues {
		if iss.Line > 0 {
			fmt.Fprintf(&b, "- line %d: %s\n", iss.Line, iss.Message)
		} else {
			fmt.Fprintf(&b, "- %s\n", iss.Message)
		}
	}
	fmt.Fprintf(&b, "\nCurrent code:\n```%s\n%s\n```\n\n", language, strings.TrimRight(code, "\n"))
	fmt.Fprintf(&b, "Improved code:\n```%s\n", language)
	return b.String()
}

var fencedBlock = regexp.MustCompile("(?s)```(?:[\\w+-]+)?\\n(.*?)\\n```")

// ExtractCode pulls code out of a model response: the largest fenced block;
// else, for a fence that is opened but never closed, everything after its
// opening line; else, when the response continues an open fence, everything
// before the closing fence; else every non-blank line that is not markdown
// (headers or bullets).
func ExtractCode(resp string) string {
	var best string
	for _, m := range fencedBlock.FindAllStringSubmatch(resp, -1) {
		if len(m[1]) > len(best) {
			best = m[1]
		}
	}
	if best != "" {
		return strings.TrimSpace(best)
	}

	if rest, ok := strings.CutPrefix(strings.TrimLeft(resp, " \t\r\n"), "```"); ok {
		_, body, _ := strings.Cut(rest, "\n")
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		return strings.TrimSpace(body)
	}

	if i := strings.Index(resp, "```"); i > 0 {
		return strings.TrimSpace(resp[:i])
	}

	var lines []string
	for _, line := range strings.Split(resp, "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
