package detector

import (
	"math/rand"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"codeguardian/types"
)

// Scalability assessment categories.
const (
	AssessFrontend       = "frontend"
	AssessBackend        = "backend"
	AssessDatabase       = "database"
	AssessInfrastructure = "infrastructure"
)

var scalabilityLevels = [4]string{"poor", "fair", "good", "excellent"}

type scalabilityCategory struct {
	threshold float64
	entries   []types.ScalabilityIssue
}

var scalabilityCatalog = func() *orderedmap.OrderedMap[string, scalabilityCategory] {
	om := orderedmap.New[string, scalabilityCategory]()
	om.Set(AssessFrontend, scalabilityCategory{threshold: 0.3, entries: []types.ScalabilityIssue{
		{
			ID:                "FRONT-SCALE-001",
			Name:              "Unoptimized Images and Assets",
			Description:       "Large unoptimized images and assets can significantly impact load times and scalability",
			Impact:            types.SeverityHigh,
			Remediation:       "Implement image optimization, compression, and lazy loading techniques",
			DetectionPatterns: []string{"img", "image", "png", "jpg", "jpeg", "svg"},
		},
		{
			ID:                "FRONT-SCALE-002",
			Name:              "Excessive DOM Size",
			Description:       "Large DOM trees with many elements can cause performance issues at scale",
			Impact:            types.SeverityMedium,
			Remediation:       "Reduce DOM size, implement virtualization for large lists, and optimize rendering",
			DetectionPatterns: []string{"div", "span", "document", "createElement"},
		},
		{
			ID:                "FRONT-SCALE-003",
			Name:              "Render-Blocking Resources",
			Description:       "CSS and JavaScript files that block rendering can delay page load",
			Impact:            types.SeverityHigh,
			Remediation:       "Use async/defer for scripts, inline critical CSS, and optimize the critical rendering path",
			DetectionPatterns: []string{"script", "link", "stylesheet", "css"},
		},
		{
			ID:                "FRONT-SCALE-004",
			Name:              "Inefficient Event Handling",
			Description:       "Too many event listeners or inefficient event handling can cause performance issues",
			Impact:            types.SeverityMedium,
			Remediation:       "Use event delegation, debounce/throttle event handlers, and remove unnecessary listeners",
			DetectionPatterns: []string{"addEventListener", "onclick", "onchange", "event"},
		},
		{
			ID:                "FRONT-SCALE-005",
			Name:              "No Code Splitting",
			Description:       "Large JavaScript bundles without code splitting can slow initial load times",
			Impact:            types.SeverityMedium,
			Remediation:       "Implement code splitting to load only necessary code for each page or feature",
			DetectionPatterns: []string{"import", "require", "webpack", "bundle"},
		},
	}})
	om.Set(AssessBackend, scalabilityCategory{threshold: 0.25, entries: []types.ScalabilityIssue{
		{
			ID:                "BACK-SCALE-001",
			Name:              "Synchronous Processing of Requests",
			Description:       "Handling requests synchronously can limit throughput and cause bottlenecks",
			Impact:            types.SeverityCritical,
			Remediation:       "Implement asynchronous processing, use non-blocking I/O, and consider event-driven architecture",
			DetectionPatterns: []string{"function", "app", "request", "response"},
		},
		{
			ID:                "BACK-SCALE-002",
			Name:              "Inefficient Database Queries",
			Description:       "Unoptimized database queries can cause performance issues at scale",
			Impact:            types.SeverityHigh,
			Remediation:       "Optimize queries, add proper indexes, and implement query caching",
			DetectionPatterns: []string{"query", "select", "where", "database", "db"},
		},
		{
			ID:                "BACK-SCALE-003",
			Name:              "No Caching Strategy",
			Description:       "Lack of caching can increase load on backend services and databases",
			Impact:            types.SeverityHigh,
			Remediation:       "Implement appropriate caching at multiple levels (CDN, application, database)",
			DetectionPatterns: []string{"cache", "redis", "memcached"},
		},
		{
			ID:                "BACK-SCALE-004",
			Name:              "Monolithic Architecture",
			Description:       "Monolithic applications can be difficult to scale horizontally",
			Impact:            types.SeverityMedium,
			Remediation:       "Consider microservices architecture for independent scaling of components",
			DetectionPatterns: []string{"app", "server", "express", "application"},
		},
		{
			ID:                "BACK-SCALE-005",
			Name:              "Stateful Application Design",
			Description:       "Storing session state in application memory limits horizontal scaling",
			Impact:            types.SeverityHigh,
			Remediation:       "Design stateless applications and store session data in distributed stores",
			DetectionPatterns: []string{"session", "state", "store", "memory"},
		},
	}})
	om.Set(AssessDatabase, scalabilityCategory{threshold: 0.2, entries: []types.ScalabilityIssue{
		{
			ID:                "DB-SCALE-001",
			Name:              "No Database Sharding",
			Description:       "Large databases without sharding can hit scaling limits",
			Impact:            types.SeverityHigh,
			Remediation:       "Implement database sharding for horizontal scaling of data storage",
			DetectionPatterns: []string{"database", "db", "model", "schema"},
		},
		{
			ID:                "DB-SCALE-002",
			Name:              "Missing Indexes",
			Description:       "Tables without proper indexes can cause slow queries at scale",
			Impact:            types.SeverityHigh,
			Remediation:       "Add appropriate indexes based on query patterns",
			DetectionPatterns: []string{"index", "query", "find", "where"},
		},
		{
			ID:                "DB-SCALE-003",
			Name:              "No Connection Pooling",
			Description:       "Creating new database connections for each request limits scalability",
			Impact:            types.SeverityMedium,
			Remediation:       "Implement connection pooling to reuse database connections",
			DetectionPatterns: []string{"connect", "connection", "database", "db"},
		},
		{
			ID:                "DB-SCALE-004",
			Name:              "No Read/Write Splitting",
			Description:       "Using the same database for reads and writes can limit throughput",
			Impact:            types.SeverityMedium,
			Remediation:       "Implement read replicas and direct read queries to replicas",
			DetectionPatterns: []string{"read", "write", "query", "update"},
		},
		{
			ID:                "DB-SCALE-005",
			Name:              "Large Transactions",
			Description:       "Long-running transactions can block other operations and limit concurrency",
			Impact:            types.SeverityHigh,
			Remediation:       "Break down large transactions into smaller ones and minimize transaction duration",
			DetectionPatterns: []string{"transaction", "commit", "rollback"},
		},
	}})
	om.Set(AssessInfrastructure, scalabilityCategory{threshold: 0.15, entries: []types.ScalabilityIssue{
		{
			ID:                "INFRA-SCALE-001",
			Name:              "No Auto-Scaling Configuration",
			Description:       "Fixed infrastructure without auto-scaling cannot handle variable loads",
			Impact:            types.SeverityCritical,
			Remediation:       "Implement auto-scaling for dynamic resource allocation based on demand",
			DetectionPatterns: []string{"server", "host", "deploy", "cloud"},
		},
		{
			ID:                "INFRA-SCALE-002",
			Name:              "Single Region Deployment",
			Description:       "Deploying to a single region increases latency for distant users and creates a single point of failure",
			Impact:            types.SeverityHigh,
			Remediation:       "Implement multi-region deployment with proper load balancing",
			DetectionPatterns: []string{"region", "deploy", "aws", "azure", "gcp"},
		},
		{
			ID:                "INFRA-SCALE-003",
			Name:              "No CDN Integration",
			Description:       "Serving static assets directly from application servers limits scalability",
			Impact:            types.SeverityHigh,
			Remediation:       "Use CDNs to distribute static content globally",
			DetectionPatterns: []string{"static", "assets", "public", "dist"},
		},
		{
			ID:                "INFRA-SCALE-004",
			Name:              "Insufficient Monitoring",
			Description:       "Lack of comprehensive monitoring makes it difficult to identify scaling issues",
			Impact:            types.SeverityMedium,
			Remediation:       "Implement robust monitoring and alerting for all components",
			DetectionPatterns: []string{"log", "monitor", "metric", "trace"},
		},
		{
			ID:                "INFRA-SCALE-005",
			Name:              "No Load Testing Strategy",
			Description:       "Without load testing, it's difficult to identify scaling bottlenecks before production",
			Impact:            types.SeverityMedium,
			Remediation:       "Implement regular load testing as part of the development process",
			DetectionPatterns: []string{"test", "performance", "load"},
		},
	}})
	return om
}()

var generalScalabilityRecommendations = []types.ScalabilityRecommendation{
	{
		Title:       "Implement Horizontal Scaling",
		Description: "Design your application to scale horizontally by adding more instances rather than upgrading existing ones",
		Priority:    "high",
		Category:    AssessInfrastructure,
	},
	{
		Title:       "Use Content Delivery Networks (CDNs)",
		Description: "Distribute static content through CDNs to reduce load on application servers and improve global performance",
		Priority:    "high",
		Category:    AssessFrontend,
	},
	{
		Title:       "Implement Caching Strategies",
		Description: "Add multi-level caching (browser, CDN, application, database) to reduce load and improve response times",
		Priority:    "high",
		Category:    AssessBackend,
	},
}

// issueRecommendations adds a targeted recommendation when the keyed issue
// was found. Insertion order is output order.
var issueRecommendations = func() *orderedmap.OrderedMap[string, types.ScalabilityRecommendation] {
	om := orderedmap.New[string, types.ScalabilityRecommendation]()
	om.Set("FRONT-SCALE-001", types.ScalabilityRecommendation{
		Title:       "Optimize Images and Assets",
		Description: "Compress images, use WebP format, implement lazy loading, and minimize CSS/JS files",
		Priority:    "high",
		Category:    AssessFrontend,
	})
	om.Set("FRONT-SCALE-002", types.ScalabilityRecommendation{
		Title:       "Reduce DOM Complexity",
		Description: "Simplify DOM structure, use virtualization for large lists, and optimize component rendering",
		Priority:    "medium",
		Category:    AssessFrontend,
	})
	om.Set("BACK-SCALE-001", types.ScalabilityRecommendation{
		Title:       "Implement Asynchronous Processing",
		Description: "Use non-blocking I/O, background jobs, and message queues for resource-intensive tasks",
		Priority:    "critical",
		Category:    AssessBackend,
	})
	om.Set("BACK-SCALE-005", types.ScalabilityRecommendation{
		Title:       "Design Stateless Applications",
		Description: "Store session state in distributed stores like Redis instead of application memory",
		Priority:    "high",
		Category:    AssessBackend,
	})
	om.Set("DB-SCALE-001", types.ScalabilityRecommendation{
		Title:       "Implement Database Sharding",
		Description: "Partition data across multiple database instances to improve scalability",
		Priority:    "high",
		Category:    AssessDatabase,
	})
	om.Set("DB-SCALE-002", types.ScalabilityRecommendation{
		Title:       "Optimize Database Indexes",
		Description: "Add appropriate indexes based on query patterns to improve database performance",
		Priority:    "high",
		Category:    AssessDatabase,
	})
	om.Set("INFRA-SCALE-001", types.ScalabilityRecommendation{
		Title:       "Configure Auto-Scaling",
		Description: "Set up auto-scaling groups to automatically adjust capacity based on demand",
		Priority:    "critical",
		Category:    AssessInfrastructure,
	})
	om.Set("INFRA-SCALE-002", types.ScalabilityRecommendation{
		Title:       "Implement Multi-Region Deployment",
		Description: "Deploy to multiple geographic regions with proper load balancing for improved availability and performance",
		Priority:    "high",
		Category:    AssessInfrastructure,
	})
	return om
}()

// ScalabilityAssessmentTypes returns the assessment categories in order.
func ScalabilityAssessmentTypes() []string {
	out := make([]string, 0, scalabilityCatalog.Len())
	for pair := scalabilityCatalog.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// ScalabilityAssessor matches code against the scalability catalog.
type ScalabilityAssessor struct {
	*engine
}

func NewScalabilityAssessor(rng *rand.Rand) *ScalabilityAssessor {
	return &ScalabilityAssessor{engine: newEngine(rng)}
}

func scalabilityDepthAction(depth string, impact types.Severity) depthAction {
	switch depth {
	case DepthBasic:
		if impact != types.SeverityCritical && impact != types.SeverityHigh {
			return dropEntry
		}
	case DepthStandard:
		if impact == types.SeverityLow {
			return sampleEntry
		}
	}
	return keepEntry
}

// Assess reports scalability issues and recommendations for code.
func (a *ScalabilityAssessor) Assess(code, depth string, assessTypes []string) types.ScalabilityResult {
	depth = normalizeDepth(depth)
	assessTypes = normalizeTypes(assessTypes, ScalabilityAssessmentTypes(), "scalability")

	result := types.ScalabilityResult{
		Issues:           []types.ScalabilityIssue{},
		Recommendations:  []types.ScalabilityRecommendation{},
		ScalabilityLevel: LevelUnknown,
		AssessmentTime:   a.now(),
		AssessmentDepth:  depth,
		AssessmentTypes:  assessTypes,
	}
	if code == "" {
		return result
	}

	lowered := strings.ToLower(code)
	lines := lineCount(code)

	a.mu.Lock()
	for _, assessType := range assessTypes {
		category, ok := scalabilityCatalog.Get(assessType)
		if !ok {
			continue
		}
		for _, entry := range category.entries {
			action := scalabilityDepthAction(depth, entry.Impact)
			start, end, found := a.admit(lowered, lines, entry.DetectionPatterns, category.threshold, action)
			if !found {
				continue
			}
			issue := entry
			issue.DetectionPatterns = append([]string(nil), entry.DetectionPatterns...)
			issue.LineStart = start
			issue.LineEnd = end
			result.Issues = append(result.Issues, issue)
		}
	}
	a.mu.Unlock()

	result.Recommendations = RecommendationsFor(result.Issues)

	impacts := make([]types.Severity, 0, len(result.Issues))
	for _, issue := range result.Issues {
		impacts = append(impacts, issue.Impact)
	}
	result.Counts = countSeverities(impacts)
	result.ScalabilityScore = Score(result.Counts)
	result.ScalabilityLevel = grade(result.Counts, scalabilityLevels)
	return result
}

// RecommendationsFor returns the general recommendations followed by one
// targeted entry per matching issue.
func RecommendationsFor(issues []types.ScalabilityIssue) []types.ScalabilityRecommendation {
	found := make(map[string]bool, len(issues))
	for _, issue := range issues {
		found[issue.ID] = true
	}

	out := append([]types.ScalabilityRecommendation(nil), generalScalabilityRecommendations...)
	for pair := issueRecommendations.Oldest(); pair != nil; pair = pair.Next() {
		if found[pair.Key] {
			out = append(out, pair.Value)
		}
	}
	return out
}
