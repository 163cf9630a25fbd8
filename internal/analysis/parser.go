// Package analysis turns free-form model output into structured issues,
// recommendations and resources, and renders chat text for display.
package analysis

import (
	"regexp"
	"strings"

	"codeguardian/types"
)

const (
	issuesHeader          = "issues:"
	recommendationsHeader = "recommendations:"
	resourcesHeader       = "resources:"

	genericIssueTitle          = "Code Issue"
	genericRecommendationTitle = "Recommendation"
	issueLocation              = "Detected in code"
)

var knownHeaders = []string{issuesHeader, recommendationsHeader, resourcesHeader}

// headerPatterns match each header case-insensitively on the original text,
// so the returned offsets are valid for slicing it.
var headerPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(knownHeaders))
	for _, h := range knownHeaders {
		patterns[h] = regexp.MustCompile("(?i)" + regexp.QuoteMeta(h))
	}
	return patterns
}()

var (
	sectionSplitRegex = regexp.MustCompile(`\d+\. `)
	codeFenceRegex    = regexp.MustCompile("(?s)```(.*?)```")
)

// Report is the structured form of an analysis text.
type Report struct {
	Issues          []types.Issue          `json:"issues"`
	Recommendations []types.Recommendation `json:"recommendations"`
	Resources       []types.Resource       `json:"resources"`
}

// Parse extracts the ISSUES, RECOMMENDATIONS and RESOURCES sections of text.
// Any category that comes out empty is filled with demo entries, so the
// result is never empty. Parse is pure.
func Parse(text string) Report {
	sections := sectionSplitRegex.Split(text, -1)

	var report Report
	if section, ok := findSection(sections, issuesHeader); ok {
		report.Issues = parseIssues(section)
	}
	if section, ok := findSection(sections, recommendationsHeader); ok {
		report.Recommendations = parseRecommendations(section)
	}
	if section, ok := findSection(sections, resourcesHeader); ok {
		report.Resources = parseResources(section)
	} else {
		report.Resources = ResourcesForIssues(report.Issues)
	}

	if len(report.Issues) == 0 {
		report.Issues = DemoIssues()
	}
	if len(report.Recommendations) == 0 {
		report.Recommendations = DemoRecommendations()
	}
	if len(report.Resources) == 0 {
		report.Resources = DemoResources()
	}
	return report
}

// findSection returns the first chunk that carries header, case-insensitively.
func findSection(sections []string, header string) (string, bool) {
	for _, s := range sections {
		if headerPatterns[header].MatchString(s) {
			return s, true
		}
	}
	return "", false
}

// sectionLines splits a chunk into record lines. The header token is removed
// and whatever follows it on the same line is kept. A fenced block opened on
// one line runs on until its closing fence. Lines before the header are
// ignored and another section's header ends the chunk.
func sectionLines(section, header string) []string {
	var lines []string
	var pending strings.Builder
	inFence := false
	started := false

	for _, raw := range strings.Split(section, "\n") {
		line := raw
		if !inFence {
			if loc := headerPatterns[header].FindStringIndex(line); loc != nil {
				started = true
				line = line[loc[1]:]
			} else if !started {
				continue
			} else if startsOtherSection(line, header) {
				break
			}
		}

		if inFence {
			pending.WriteString("\n")
			pending.WriteString(line)
		} else {
			if strings.TrimSpace(cleanMarkup(line)) == "" {
				continue
			}
			pending.Reset()
			pending.WriteString(line)
		}

		if strings.Count(line, "```")%2 == 1 {
			inFence = !inFence
		}
		if !inFence {
			lines = append(lines, strings.TrimSpace(pending.String()))
			pending.Reset()
		}
	}
	if inFence && pending.Len() > 0 {
		lines = append(lines, strings.TrimSpace(pending.String()))
	}
	return lines
}

func startsOtherSection(line, header string) bool {
	line = cleanMarkup(line)
	for _, h := range knownHeaders {
		if h == header {
			continue
		}
		if loc := headerPatterns[h].FindStringIndex(line); loc != nil && loc[0] == 0 {
			return true
		}
	}
	return false
}

// cleanMarkup drops list bullets and emphasis that frame a title.
func cleanMarkup(s string) string {
	return strings.Trim(s, " \t*_#-•")
}

// splitTitle splits at the first colon. ok is false when there is none.
func splitTitle(line string) (title, description string, ok bool) {
	before, after, found := strings.Cut(line, ":")
	if !found {
		return "", strings.TrimSpace(line), false
	}
	return cleanMarkup(before), strings.TrimSpace(strings.TrimLeft(after, "* ")), true
}

func parseIssues(section string) []types.Issue {
	var issues []types.Issue
	for _, line := range sectionLines(section, issuesHeader) {
		title, description, ok := splitTitle(line)
		if !ok || title == "" {
			title, description = genericIssueTitle, cleanMarkup(line)
		}
		issues = append(issues, types.Issue{Title: title, Description: description, Location: issueLocation})
	}
	return issues
}

func parseRecommendations(section string) []types.Recommendation {
	var recs []types.Recommendation
	for _, line := range sectionLines(section, recommendationsHeader) {
		title, description, ok := splitTitle(line)
		if !ok || title == "" || strings.Contains(title, "```") {
			title, description = genericRecommendationTitle, strings.TrimSpace(line)
		}

		code := ""
		if m := codeFenceRegex.FindStringSubmatch(description); m != nil {
			code = strings.TrimSpace(m[1])
		}
		description = strings.TrimSpace(codeFenceRegex.ReplaceAllString(description, ""))

		recs = append(recs, types.Recommendation{Title: title, Description: description, Code: code})
	}
	return recs
}

func parseResources(section string) []types.Resource {
	var resources []types.Resource
	for _, line := range sectionLines(section, resourcesHeader) {
		resources = append(resources, types.Resource{
			Title:       cleanMarkup(line),
			Description: "Recommended by AI analysis",
			Link:        "#",
			Icon:        "fa-link",
		})
	}
	return resources
}
