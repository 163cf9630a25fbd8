// Package guardian is the CodeGuardian service layer. It owns the user
// sessions, runs chat and code analysis through the fallback dispatcher,
// wraps the detectors and fans events out to the dashboard.
package guardian

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeguardian/inference_engine"
	"codeguardian/internal/analysis"
	"codeguardian/internal/detector"
	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/logging"
	"codeguardian/types"
)

// Event types published to sinks.
const (
	EventChatResponse    = "chat_response"
	EventAnalysis        = "analysis_completed"
	EventSecurityScan    = "security_scan_completed"
	EventScalability     = "scalability_assessment_completed"
	EventActivity        = "activity"
	summaryLength        = 160
	eventPublishDeadline = 5 * time.Second
)

const analysisPromptFormat = "Analyze this %s code for security vulnerabilities, performance issues, and scalability concerns. Provide your analysis in the following format:\n\n1. ISSUES: List all identified problems, vulnerabilities, and concerns\n2. RECOMMENDATIONS: Provide specific code fixes and improvements for each issue\n3. RESOURCES: Suggest relevant APIs, libraries, or documentation that could help address these issues\n\nCode to analyze:\n\n%s"

// Dispatcher runs a prompt through the providers.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, history []types.ConversationTurn, policy inference_engine.DispatchPolicy) types.DispatchResult
}

// EventSink receives service events, e.g. the websocket hub or Kafka.
type EventSink interface {
	PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) error
}

// ChatResponse is the outcome of one chat query.
type ChatResponse struct {
	SessionID  string                   `json:"sessionId"`
	Result     types.DispatchResult     `json:"result"`
	HTML       string                   `json:"html,omitempty"`
	Transcript []types.ConversationTurn `json:"transcript"`
}

// AnalysisResponse is the outcome of one code analysis.
type AnalysisResponse struct {
	SessionID string                `json:"sessionId"`
	Result    types.DispatchResult  `json:"result"`
	Report    *types.AnalysisReport `json:"report,omitempty"`
	HTML      string                `json:"html,omitempty"`
}

// ScanRequest selects what a detector run covers.
type ScanRequest struct {
	Code     string   `json:"code"`
	Language string   `json:"language,omitempty"`
	Depth    string   `json:"depth,omitempty"`
	Types    []string `json:"types,omitempty"`
}

// CodeGuardian coordinates sessions, dispatch, detectors and activity.
type CodeGuardian struct {
	dispatcher  Dispatcher
	sessions    *SessionManager
	security    *detector.SecurityScanner
	scalability *detector.ScalabilityAssessor
	activity    *ActivityLog
	sinks       []EventSink
}

// NewCodeGuardian wires the service. Nil detectors are created with a
// clock seeded random source.
func NewCodeGuardian(dispatcher Dispatcher, sessions *SessionManager, security *detector.SecurityScanner, scalability *detector.ScalabilityAssessor) *CodeGuardian {
	if sessions == nil {
		sessions = NewSessionManager(0, "")
	}
	if security == nil {
		security = detector.NewSecurityScanner(nil)
	}
	if scalability == nil {
		scalability = detector.NewScalabilityAssessor(nil)
	}
	return &CodeGuardian{
		dispatcher:  dispatcher,
		sessions:    sessions,
		security:    security,
		scalability: scalability,
		activity:    NewActivityLog(maxActivities),
	}
}

// AddEventSink registers a sink. Call during startup only.
func (g *CodeGuardian) AddEventSink(sink EventSink) {
	if sink != nil {
		g.sinks = append(g.sinks, sink)
	}
}

// Sessions exposes the session manager.
func (g *CodeGuardian) Sessions() *SessionManager {
	return g.sessions
}

// AnalysisPrompt builds the prompt sent for code analysis.
func AnalysisPrompt(language, code string) string {
	return fmt.Sprintf(analysisPromptFormat, language, code)
}

// SendQuery answers a chat question in the context of the session history.
// Blank questions and overlapping calls for the same session are rejected
// with an AppError. Every other outcome, including a failed dispatch, is
// reported inside the ChatResponse.
func (g *CodeGuardian) SendQuery(ctx context.Context, sessionID, question string) (ChatResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ChatResponse{}, apperrors.NewEmptyInputError("question")
	}

	session := g.sessions.Get(sessionID)
	if !session.tryBegin() {
		return ChatResponse{}, apperrors.NewDispatchInProgressError()
	}
	defer session.end()

	history := session.history.GetMessagesForContext()
	result := g.dispatcher.Dispatch(ctx, question, history, inference_engine.ChatPolicy)

	// A missing key stops the query before it is part of the conversation.
	if result.ErrorCode != apperrors.CodeNoCredentials {
		session.history.Append(types.RoleUser, question)
	}
	if result.Success {
		session.history.Append(types.RoleAssistant, result.Text)
	}

	response := ChatResponse{
		SessionID:  session.ID,
		Result:     result,
		Transcript: session.Transcript(),
	}
	if result.Success {
		response.HTML = analysis.FormatMessageSafe(result.Text)
		g.RecordActivity(ActivityChat, fmt.Sprintf("Received AI response from %s", result.ProviderID.DisplayName()), map[string]interface{}{
			"provider": result.ProviderID,
		})
		logging.L_info("✅ Chat answered", "session", session.ID, "provider", result.ProviderID)
	} else {
		logging.L_warn("⚠️  Chat failed", "session", session.ID, "code", result.ErrorCode, "error", result.ErrorMessage)
	}

	g.publish(EventChatResponse, map[string]interface{}{
		"session_id": session.ID,
		"success":    result.Success,
		"provider":   result.ProviderID,
		"error_code": result.ErrorCode,
		"summary":    analysis.Summary(result.Text, summaryLength),
	})
	return response, nil
}

// AnalyzeCode asks the providers to review code and parses the answer into
// a report. Empty code is dispatched like any other input.
func (g *CodeGuardian) AnalyzeCode(ctx context.Context, sessionID, code, language string) (AnalysisResponse, error) {
	session := g.sessions.Get(sessionID)
	if !session.tryBegin() {
		return AnalysisResponse{}, apperrors.NewDispatchInProgressError()
	}
	defer session.end()

	prompt := AnalysisPrompt(language, code)
	result := g.dispatcher.Dispatch(ctx, prompt, session.history.GetMessagesForContext(), inference_engine.AnalysisPolicy)

	response := AnalysisResponse{SessionID: session.ID, Result: result}
	if !result.Success {
		logging.L_error("❌ Code analysis failed", "session", session.ID, "code", result.ErrorCode, "error", result.ErrorMessage)
		return response, nil
	}

	parsed := analysis.Parse(result.Text)
	response.Report = &types.AnalysisReport{
		Issues:          parsed.Issues,
		Recommendations: parsed.Recommendations,
		Resources:       parsed.Resources,
		ProviderID:      result.ProviderID,
		ProviderName:    result.ProviderID.DisplayName(),
	}
	response.HTML = analysis.FormatMessageSafe(result.Text)

	issues := len(parsed.Issues)
	g.RecordActivity(ActivityAnalysis, fmt.Sprintf("Completed code analysis with %d issues found", issues), map[string]interface{}{
		"provider":        result.ProviderID,
		"language":        language,
		"issues":          issues,
		"recommendations": len(parsed.Recommendations),
	})
	g.publish(EventAnalysis, map[string]interface{}{
		"session_id": session.ID,
		"provider":   result.ProviderID,
		"language":   language,
		"issues":     issues,
	})
	logging.L_info("✅ Code analysis complete", "session", session.ID, "provider", result.ProviderID, "issues", issues)
	return response, nil
}

// ScanSecurity runs the vulnerability scanner.
func (g *CodeGuardian) ScanSecurity(req ScanRequest) types.SecurityScanResult {
	result := g.security.Scan(req.Code, req.Depth, req.Types)
	if req.Code == "" {
		return result
	}

	g.RecordActivity(ActivitySecurity, fmt.Sprintf("Security scan completed with %d vulnerabilities found", len(result.Vulnerabilities)), map[string]interface{}{
		"securityScore":        result.SecurityScore,
		"threatLevel":          result.ThreatLevel,
		"vulnerabilitiesCount": len(result.Vulnerabilities),
	})
	g.publish(EventSecurityScan, map[string]interface{}{
		"score":           result.SecurityScore,
		"threat_level":    result.ThreatLevel,
		"vulnerabilities": len(result.Vulnerabilities),
	})
	return result
}

// AssessScalability runs the scalability assessor.
func (g *CodeGuardian) AssessScalability(req ScanRequest) types.ScalabilityResult {
	result := g.scalability.Assess(req.Code, req.Depth, req.Types)
	if req.Code == "" {
		return result
	}

	g.RecordActivity(ActivityScalability, fmt.Sprintf("Scalability assessment completed with %d issues found", len(result.Issues)), map[string]interface{}{
		"scalabilityScore": result.ScalabilityScore,
		"scalabilityLevel": result.ScalabilityLevel,
		"issuesCount":      len(result.Issues),
	})
	g.publish(EventScalability, map[string]interface{}{
		"score":  result.ScalabilityScore,
		"level":  result.ScalabilityLevel,
		"issues": len(result.Issues),
	})
	return result
}

// History returns the session transcript. Unknown sessions have none.
func (g *CodeGuardian) History(sessionID string) []types.ConversationTurn {
	session, ok := g.sessions.Lookup(sessionID)
	if !ok {
		return []types.ConversationTurn{}
	}
	return session.Transcript()
}

// ClearHistory empties the session transcript. It is refused while a
// dispatch for the session is running.
func (g *CodeGuardian) ClearHistory(sessionID string) error {
	session, ok := g.sessions.Lookup(sessionID)
	if !ok {
		return nil
	}
	if !session.tryBegin() {
		return apperrors.NewDispatchInProgressError()
	}
	defer session.end()
	session.history.Clear()
	return nil
}

// RecordActivity adds an activity entry and publishes it.
func (g *CodeGuardian) RecordActivity(activityType, description string, details map[string]interface{}) {
	entry := g.activity.Add(activityType, description, details)
	g.publish(EventActivity, map[string]interface{}{
		"type":        entry.Type,
		"description": entry.Description,
		"timestamp":   entry.Timestamp.Format(time.RFC3339),
	})
}

// RecentActivity returns up to ten entries, newest first.
func (g *CodeGuardian) RecentActivity() []types.Activity {
	return g.activity.Recent()
}

// publish hands an event to every sink. Sink failures are logged only.
func (g *CodeGuardian) publish(eventType string, data map[string]interface{}) {
	if len(g.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventPublishDeadline)
	defer cancel()

	for _, sink := range g.sinks {
		if err := sink.PublishEvent(ctx, eventType, data); err != nil {
			logging.L_warn("⚠️  Failed to publish event", "type", eventType, "error", err)
		}
	}
}
