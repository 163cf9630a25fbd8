package analysis

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"codeguardian/types"
)

// keywordResources maps issue keywords to a suggested resource. Iteration
// order is insertion order, which fixes the order of synthesized resources.
var keywordResources = func() *orderedmap.OrderedMap[string, types.Resource] {
	om := orderedmap.New[string, types.Resource]()
	om.Set("security", types.Resource{
		Title:       "OWASP Security Cheat Sheet",
		Description: "Comprehensive guide on preventing security vulnerabilities",
		Link:        "https://cheatsheetseries.owasp.org/",
		Icon:        "fa-shield-alt",
	})
	om.Set("performance", types.Resource{
		Title:       "Web Performance Optimization",
		Description: "Best practices for optimizing application performance",
		Link:        "https://developer.mozilla.org/en-US/docs/Web/Performance",
		Icon:        "fa-bolt",
	})
	om.Set("scalability", types.Resource{
		Title:       "Scalable Architecture Patterns",
		Description: "Design patterns for building scalable applications",
		Link:        "https://docs.microsoft.com/en-us/azure/architecture/patterns/",
		Icon:        "fa-server",
	})
	om.Set("code quality", types.Resource{
		Title:       "Clean Code: A Handbook of Agile Software Craftsmanship",
		Description: "Learn principles of clean, maintainable code",
		Link:        "https://www.amazon.com/Clean-Code-Handbook-Software-Craftsmanship/dp/0132350882",
		Icon:        "fa-book",
	})
	return om
}()

var generalResource = types.Resource{
	Title:       "Developer Mozilla Network (MDN)",
	Description: "Comprehensive web development documentation",
	Link:        "https://developer.mozilla.org/",
	Icon:        "fa-book",
}

// ResourcesForIssues suggests at most one resource per keyword found in the
// issue titles and descriptions. With no match it returns the MDN resource.
func ResourcesForIssues(issues []types.Issue) []types.Resource {
	texts := make([]string, 0, len(issues))
	for _, issue := range issues {
		texts = append(texts, strings.ToLower(issue.Title+" "+issue.Description))
	}

	var resources []types.Resource
	for pair := keywordResources.Oldest(); pair != nil; pair = pair.Next() {
		for _, text := range texts {
			if strings.Contains(text, pair.Key) {
				resources = append(resources, pair.Value)
				break
			}
		}
	}

	if len(resources) == 0 {
		resources = append(resources, generalResource)
	}
	return resources
}
