package types

import (
	"strings"
	"time"
)

// ============================================================================
// PROVIDERS
// ============================================================================

type ProviderID string

const (
	ProviderPerplexity ProviderID = "perplexity"
	ProviderOpenAI     ProviderID = "openai"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderGemini     ProviderID = "gemini"

	// ProviderSimulation is the local responder used when no real provider answers.
	ProviderSimulation ProviderID = "simulation"
)

// DefaultPriorityOrder is the fixed provider preference order. First listed is most preferred.
var DefaultPriorityOrder = []ProviderID{
	ProviderPerplexity,
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
}

// ParseProviderID normalizes a user supplied provider name.
func ParseProviderID(s string) (ProviderID, bool) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case ProviderPerplexity, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return id, true
	}
	return "", false
}

// DisplayName returns the human readable provider name shown in report headers.
func (id ProviderID) DisplayName() string {
	switch id {
	case ProviderPerplexity:
		return "Perplexity AI"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderGemini:
		return "Google Gemini"
	case ProviderSimulation:
		return "Simulated AI"
	}
	return "AI"
}

// CredentialKey is the key-value storage key for a provider's credential.
func (id ProviderID) CredentialKey() string {
	return string(id) + "_api_key"
}

type ProviderConfig struct {
	ID          ProviderID `json:"id"`
	Endpoint    string     `json:"endpoint"`
	Credential  string     `json:"-"`
	Model       string     `json:"model"`
	MaxTokens   int        `json:"max_tokens"`
	Temperature float64    `json:"temperature"`
}

// HasCredential reports whether a usable credential is configured.
func (c ProviderConfig) HasCredential() bool {
	return strings.TrimSpace(c.Credential) != ""
}

// ============================================================================
// CONVERSATION
// ============================================================================

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ============================================================================
// DISPATCH
// ============================================================================

type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeSkipped AttemptOutcome = "skipped"
	OutcomeEmpty   AttemptOutcome = "empty"
)

// ProviderAttempt records what happened to one provider during a dispatch.
// Error text is never carried here.
type ProviderAttempt struct {
	Provider ProviderID     `json:"provider"`
	Outcome  AttemptOutcome `json:"outcome"`
}

type DispatchResult struct {
	Success      bool              `json:"success"`
	Text         string            `json:"text,omitempty"`
	ProviderID   ProviderID        `json:"providerId,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	ErrorCode    string            `json:"errorCode,omitempty"`
	Attempts     []ProviderAttempt `json:"attempts,omitempty"`
}

// ============================================================================
// ANALYSIS REPORT
// ============================================================================

type Issue struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

type Resource struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Icon        string `json:"icon"`
}

type AnalysisReport struct {
	Issues          []Issue          `json:"issues"`
	Recommendations []Recommendation `json:"recommendations"`
	Resources       []Resource       `json:"resources"`
	ProviderID      ProviderID       `json:"providerId,omitempty"`
	ProviderName    string           `json:"providerName,omitempty"`
}

// ============================================================================
// DETECTORS
// ============================================================================

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

type Vulnerability struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Severity          Severity `json:"severity"`
	Remediation       string   `json:"remediation"`
	CWE               string   `json:"cwe"`
	DetectionPatterns []string `json:"detectionPatterns"`
	LineStart         int      `json:"lineStart,omitempty"`
	LineEnd           int      `json:"lineEnd,omitempty"`
}

type SecurityScanResult struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	SecurityScore   int             `json:"securityScore"`
	ThreatLevel     string          `json:"threatLevel"`
	Counts          SeverityCounts  `json:"vulnerabilityCounts"`
	ScanTime        time.Time       `json:"scanTime"`
	ScanDepth       string          `json:"scanDepth"`
	ScanTypes       []string        `json:"scanTypes"`
}

type ScalabilityIssue struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Impact            Severity `json:"impact"`
	Remediation       string   `json:"remediation"`
	DetectionPatterns []string `json:"detectionPatterns"`
	LineStart         int      `json:"lineStart,omitempty"`
	LineEnd           int      `json:"lineEnd,omitempty"`
}

type ScalabilityRecommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

type ScalabilityResult struct {
	Issues           []ScalabilityIssue          `json:"issues"`
	Recommendations  []ScalabilityRecommendation `json:"recommendations"`
	ScalabilityScore int                         `json:"scalabilityScore"`
	ScalabilityLevel string                      `json:"scalabilityLevel"`
	Counts           SeverityCounts              `json:"issueCounts"`
	AssessmentTime   time.Time                   `json:"assessmentTime"`
	AssessmentDepth  string                      `json:"assessmentDepth"`
	AssessmentTypes  []string                    `json:"assessmentTypes"`
}

// ============================================================================
// ACTIVITY
// ============================================================================

type Activity struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Timestamp   time.Time              `json:"timestamp"`
	Details     map[string]interface{} `json:"details,omitempty"`
}
