package draft

import (
	"fmt"
	"strings"
)

// Code classifies a build issue
type Code string

const (
	// CodeData marks invalid or inconsistent invoice data
	CodeData Code = "DATA"
	// CodeConfiguration marks a mode or environment setting that prevents the build
	CodeConfiguration Code = "CONFIGURATION"
)

// Issue is a single validation finding
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// BuildError aggregates every issue found while validating or building a draft
type BuildError struct {
	Issues []Issue
}

func (e *BuildError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("invoice build failed with %d issue(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

// Has reports whether any issue carries the given code
func (e *BuildError) Has(code Code) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// At returns the issues reported for a path
func (e *BuildError) At(path string) []Issue {
	var out []Issue
	for _, issue := range e.Issues {
		if issue.Path == path {
			out = append(out, issue)
		}
	}
	return out
}
