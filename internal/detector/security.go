package detector

import (
	"math/rand"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"codeguardian/types"
)

// Security scan categories.
const (
	ScanAPI        = "api"
	ScanCloud      = "cloud"
	ScanCode       = "code"
	ScanDependency = "dependency"
)

var threatLevels = [4]string{"critical", "high", "medium", "low"}

type securityCategory struct {
	threshold float64
	entries   []types.Vulnerability
}

// vulnerabilityCatalog lists the known vulnerabilities per scan category in
// scan order.
var vulnerabilityCatalog = func() *orderedmap.OrderedMap[string, securityCategory] {
	om := orderedmap.New[string, securityCategory]()
	om.Set(ScanAPI, securityCategory{threshold: 0.3, entries: []types.Vulnerability{
		{
			ID:                "API-SEC-001",
			Name:              "Missing API Authentication",
			Description:       "API endpoints are accessible without proper authentication",
			Severity:          types.SeverityCritical,
			Remediation:       "Implement OAuth 2.0 or JWT authentication for all API endpoints",
			CWE:               "CWE-306",
			DetectionPatterns: []string{"api", "endpoint", "route", "public"},
		},
		{
			ID:                "API-SEC-002",
			Name:              "Insecure Direct Object References (IDOR)",
			Description:       "API allows access to resources via direct references without access control checks",
			Severity:          types.SeverityHigh,
			Remediation:       "Implement proper authorization checks for all resource access",
			CWE:               "CWE-639",
			DetectionPatterns: []string{"id", "uuid", "param", "request"},
		},
		{
			ID:                "API-SEC-003",
			Name:              "Excessive Data Exposure",
			Description:       "API returns excessive data in responses that may include sensitive information",
			Severity:          types.SeverityMedium,
			Remediation:       "Filter response data to include only necessary information",
			CWE:               "CWE-213",
			DetectionPatterns: []string{"response", "json", "data", "return"},
		},
		{
			ID:                "API-SEC-004",
			Name:              "Missing Rate Limiting",
			Description:       "API lacks rate limiting, making it vulnerable to abuse and DoS attacks",
			Severity:          types.SeverityMedium,
			Remediation:       "Implement rate limiting middleware for all API endpoints",
			CWE:               "CWE-770",
			DetectionPatterns: []string{"api", "request", "endpoint", "route"},
		},
		{
			ID:                "API-SEC-005",
			Name:              "Improper Error Handling",
			Description:       "API returns detailed error messages that may expose sensitive information",
			Severity:          types.SeverityLow,
			Remediation:       "Implement proper error handling with sanitized error messages",
			CWE:               "CWE-209",
			DetectionPatterns: []string{"error", "exception", "catch", "throw"},
		},
	}})
	om.Set(ScanCloud, securityCategory{threshold: 0.25, entries: []types.Vulnerability{
		{
			ID:                "CLOUD-SEC-001",
			Name:              "Insecure Cloud Storage Configuration",
			Description:       "Cloud storage buckets or containers with public access or overly permissive settings",
			Severity:          types.SeverityCritical,
			Remediation:       "Configure proper access controls and encryption for cloud storage",
			CWE:               "CWE-668",
			DetectionPatterns: []string{"s3", "bucket", "blob", "storage", "public"},
		},
		{
			ID:                "CLOUD-SEC-002",
			Name:              "Hardcoded Cloud Credentials",
			Description:       "Cloud service credentials hardcoded in application code",
			Severity:          types.SeverityCritical,
			Remediation:       "Use environment variables or secure secret management services",
			CWE:               "CWE-798",
			DetectionPatterns: []string{"key", "secret", "password", "token", "credential"},
		},
		{
			ID:                "CLOUD-SEC-003",
			Name:              "Insecure Serverless Function Configuration",
			Description:       "Serverless functions with excessive permissions or insecure triggers",
			Severity:          types.SeverityHigh,
			Remediation:       "Apply least privilege principle to serverless function permissions",
			CWE:               "CWE-250",
			DetectionPatterns: []string{"lambda", "function", "serverless", "cloud function"},
		},
		{
			ID:                "CLOUD-SEC-004",
			Name:              "Missing Cloud Resource Encryption",
			Description:       "Cloud resources without proper encryption at rest or in transit",
			Severity:          types.SeverityHigh,
			Remediation:       "Enable encryption for all cloud resources and communications",
			CWE:               "CWE-311",
			DetectionPatterns: []string{"data", "storage", "database", "encrypt"},
		},
		{
			ID:                "CLOUD-SEC-005",
			Name:              "Inadequate Cloud Logging and Monitoring",
			Description:       "Insufficient logging and monitoring of cloud resource access and changes",
			Severity:          types.SeverityMedium,
			Remediation:       "Configure comprehensive logging and monitoring for all cloud resources",
			CWE:               "CWE-778",
			DetectionPatterns: []string{"log", "monitor", "audit", "trace"},
		},
	}})
	om.Set(ScanCode, securityCategory{threshold: 0.2, entries: []types.Vulnerability{
		{
			ID:                "CODE-SEC-001",
			Name:              "SQL Injection Vulnerability",
			Description:       "Code contains potential SQL injection vulnerabilities",
			Severity:          types.SeverityCritical,
			Remediation:       "Use parameterized queries or ORM libraries",
			CWE:               "CWE-89",
			DetectionPatterns: []string{"sql", "query", "database", "db"},
		},
		{
			ID:                "CODE-SEC-002",
			Name:              "Cross-Site Scripting (XSS)",
			Description:       "Code vulnerable to Cross-Site Scripting attacks",
			Severity:          types.SeverityHigh,
			Remediation:       "Implement proper output encoding and Content Security Policy",
			CWE:               "CWE-79",
			DetectionPatterns: []string{"innerHTML", "document.write", "eval", "html"},
		},
		{
			ID:                "CODE-SEC-003",
			Name:              "Insecure Cryptographic Implementation",
			Description:       "Weak or improper use of cryptographic functions",
			Severity:          types.SeverityHigh,
			Remediation:       "Use strong, standard cryptographic libraries and algorithms",
			CWE:               "CWE-327",
			DetectionPatterns: []string{"md5", "sha1", "crypto", "hash"},
		},
		{
			ID:                "CODE-SEC-004",
			Name:              "Insecure File Operations",
			Description:       "Insecure file operations that may lead to path traversal or unauthorized access",
			Severity:          types.SeverityMedium,
			Remediation:       "Validate and sanitize file paths and implement proper access controls",
			CWE:               "CWE-22",
			DetectionPatterns: []string{"file", "path", "read", "write"},
		},
		{
			ID:                "CODE-SEC-005",
			Name:              "Insecure Random Number Generation",
			Description:       "Use of weak random number generators for security-sensitive operations",
			Severity:          types.SeverityMedium,
			Remediation:       "Use cryptographically secure random number generators",
			CWE:               "CWE-338",
			DetectionPatterns: []string{"random", "math.random", "rand"},
		},
	}})
	om.Set(ScanDependency, securityCategory{threshold: 0.15, entries: []types.Vulnerability{
		{
			ID:                "DEP-SEC-001",
			Name:              "Outdated Dependencies with Known Vulnerabilities",
			Description:       "Project uses dependencies with known security vulnerabilities",
			Severity:          types.SeverityHigh,
			Remediation:       "Update dependencies to latest secure versions",
			CWE:               "CWE-1104",
			DetectionPatterns: []string{"package.json", "requirements.txt", "gemfile", "pom.xml"},
		},
		{
			ID:                "DEP-SEC-002",
			Name:              "Insecure Dependency Configuration",
			Description:       "Dependencies configured with insecure options or defaults",
			Severity:          types.SeverityMedium,
			Remediation:       "Review and secure dependency configurations",
			CWE:               "CWE-1108",
			DetectionPatterns: []string{"config", "configuration", "setup"},
		},
		{
			ID:                "DEP-SEC-003",
			Name:              "Transitive Dependency Vulnerabilities",
			Description:       "Vulnerabilities in transitive dependencies",
			Severity:          types.SeverityMedium,
			Remediation:       "Use dependency lockfiles and regular security audits",
			CWE:               "CWE-1104",
			DetectionPatterns: []string{"package-lock.json", "yarn.lock", "Pipfile.lock"},
		},
	}})
	return om
}()

// SecurityScanTypes returns the scan categories in scan order.
func SecurityScanTypes() []string {
	out := make([]string, 0, vulnerabilityCatalog.Len())
	for pair := vulnerabilityCatalog.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// SecurityScanner matches code against the vulnerability catalog.
type SecurityScanner struct {
	*engine
}

// NewSecurityScanner creates a scanner drawing from rng. A nil rng is
// seeded from the clock.
func NewSecurityScanner(rng *rand.Rand) *SecurityScanner {
	return &SecurityScanner{engine: newEngine(rng)}
}

func securityDepthAction(depth string, severity types.Severity) depthAction {
	switch depth {
	case DepthBasic:
		if severity != types.SeverityCritical {
			return dropEntry
		}
	case DepthStandard:
		if severity == types.SeverityLow {
			return sampleEntry
		}
	}
	return keepEntry
}

// Scan reports the vulnerabilities found in code. Depth basic keeps critical
// entries only, standard samples low severity entries and deep keeps all.
// Empty code yields an empty result with an unknown threat level.
func (s *SecurityScanner) Scan(code, depth string, scanTypes []string) types.SecurityScanResult {
	depth = normalizeDepth(depth)
	scanTypes = normalizeTypes(scanTypes, SecurityScanTypes(), "security")

	result := types.SecurityScanResult{
		Vulnerabilities: []types.Vulnerability{},
		ThreatLevel:     LevelUnknown,
		ScanTime:        s.now(),
		ScanDepth:       depth,
		ScanTypes:       scanTypes,
	}
	if code == "" {
		return result
	}

	lowered := strings.ToLower(code)
	lines := lineCount(code)

	s.mu.Lock()
	for _, scanType := range scanTypes {
		category, ok := vulnerabilityCatalog.Get(scanType)
		if !ok {
			continue
		}
		for _, entry := range category.entries {
			action := securityDepthAction(depth, entry.Severity)
			start, end, found := s.admit(lowered, lines, entry.DetectionPatterns, category.threshold, action)
			if !found {
				continue
			}
			finding := entry
			finding.DetectionPatterns = append([]string(nil), entry.DetectionPatterns...)
			finding.LineStart = start
			finding.LineEnd = end
			result.Vulnerabilities = append(result.Vulnerabilities, finding)
		}
	}
	s.mu.Unlock()

	severities := make([]types.Severity, 0, len(result.Vulnerabilities))
	for _, v := range result.Vulnerabilities {
		severities = append(severities, v.Severity)
	}
	result.Counts = countSeverities(severities)
	result.SecurityScore = Score(result.Counts)
	result.ThreatLevel = grade(result.Counts, threatLevels)
	return result
}
