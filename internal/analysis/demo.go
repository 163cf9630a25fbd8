package analysis

import "codeguardian/types"

// Demo entries keep the report view populated when a response has no
// parseable section. Each call returns fresh slices.

func DemoIssues() []types.Issue {
	return []types.Issue{
		{
			Title:       "Security Vulnerability",
			Description: "Potential SQL injection vulnerability detected in database query.",
			Location:    `Line 42: user_input = request.form["username"]`,
		},
		{
			Title:       "Performance Issue",
			Description: "Inefficient loop structure causing O(n²) complexity.",
			Location:    "Lines 78-85: for (let i = 0; i < array.length; i++)",
		},
		{
			Title:       "Code Quality",
			Description: "Unused variable detected.",
			Location:    `Line 103: const unusedVar = "test"`,
		},
	}
}

func DemoRecommendations() []types.Recommendation {
	return []types.Recommendation{
		{
			Title:       "Use Parameterized Queries",
			Description: "Replace direct string concatenation with parameterized queries to prevent SQL injection.",
			Code:        "const query = \"SELECT * FROM users WHERE username = ?\"\ndb.query(query, [username]);",
		},
		{
			Title:       "Optimize Loop Structure",
			Description: "Use a more efficient algorithm or data structure to reduce time complexity.",
			Code:        "// Instead of nested loops\nconst map = new Map();\nfor (let item of items) {\n  map.set(item.id, item);\n}",
		},
		{
			Title:       "Remove Unused Variables",
			Description: "Clean up your code by removing variables that are declared but never used.",
			Code:        "// Remove this line:\n// const unusedVar = \"test\";",
		},
	}
}

func DemoResources() []types.Resource {
	return []types.Resource{
		{
			Title:       "OWASP SQL Injection Prevention Cheat Sheet",
			Description: "Comprehensive guide on preventing SQL injection vulnerabilities.",
			Link:        "https://cheatsheetseries.owasp.org/cheatsheets/SQL_Injection_Prevention_Cheat_Sheet.html",
			Icon:        "fa-shield-alt",
		},
		{
			Title:       "JavaScript Performance Optimization",
			Description: "Best practices for optimizing JavaScript performance.",
			Link:        "https://developer.mozilla.org/en-US/docs/Web/Performance/JavaScript_performance",
			Icon:        "fa-bolt",
		},
		{
			Title:       "Clean Code: A Handbook of Agile Software Craftsmanship",
			Description: "Learn principles of clean, maintainable code.",
			Link:        "https://www.amazon.com/Clean-Code-Handbook-Software-Craftsmanship/dp/0132350882",
			Icon:        "fa-book",
		},
	}
}
