package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a formation/evaluation decision recorded in the audit trail.
type AuditEventType string

const (
	AuditFormationStart     AuditEventType = "formation_start"
	AuditFormationDone      AuditEventType = "formation_done"
	AuditFormationFailed    AuditEventType = "formation_failed"
	AuditStrategyInfeasible AuditEventType = "strategy_infeasible"
	AuditDossierAssembled   AuditEventType = "dossier_assembled"
	AuditPolicyEvaluated    AuditEventType = "policy_evaluated"
	AuditLinchpinScan       AuditEventType = "linchpin_scan"
	AuditSkillRecompute     AuditEventType = "skill_recompute"
)

// AuditEvent is one JSON line of the audit trail.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	RequestID  string                 `json:"req,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes decision events for later review of why a team was proposed.
type AuditLogger struct {
	requestID string
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRequest creates an audit logger scoped to a formation request.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" {
		event.RequestID = a.requestID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	auditFile.WriteString(string(data) + "\n")
}

// FormationStart records the inputs of a formation request.
func (a *AuditLogger) FormationStart(profile string, k int, skills []string) {
	a.Log(AuditEvent{
		EventType: AuditFormationStart,
		Target:    profile,
		Success:   true,
		Fields:    map[string]interface{}{"k": k, "skills": skills},
	})
}

// FormationDone records how many dossiers a request produced.
func (a *AuditLogger) FormationDone(dossiers, infeasible int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditFormationDone,
		Success:    dossiers > 0,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"dossiers": dossiers, "infeasible": infeasible},
	})
}

// FormationFailed records a request-level failure.
func (a *AuditLogger) FormationFailed(err error) {
	a.Log(AuditEvent{EventType: AuditFormationFailed, Error: err.Error()})
}

// StrategyInfeasible records a strategy omitted from the result.
func (a *AuditLogger) StrategyInfeasible(strategy, reason string) {
	a.Log(AuditEvent{EventType: AuditStrategyInfeasible, Target: strategy, Message: reason})
}

// DossierAssembled records the recommendation reached for one strategy.
func (a *AuditLogger) DossierAssembled(strategy, recommendation string, members []string, total float64) {
	a.Log(AuditEvent{
		EventType: AuditDossierAssembled,
		Target:    strategy,
		Success:   true,
		Message:   recommendation,
		Fields:    map[string]interface{}{"members": members, "total_score": total},
	})
}

// PolicyEvaluated records an evaluation outcome.
func (a *AuditLogger) PolicyEvaluated(profile string, overall float64, alerts int) {
	a.Log(AuditEvent{
		EventType: AuditPolicyEvaluated,
		Target:    profile,
		Success:   true,
		Fields:    map[string]interface{}{"overall_score": overall, "alerts": alerts},
	})
}

// LinchpinScan records a centrality pass.
func (a *AuditLogger) LinchpinScan(nodes int, approximate bool, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditLinchpinScan,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"nodes": nodes, "approximate": approximate},
	})
}

// SkillRecompute records an aggregate skill-level write.
func (a *AuditLogger) SkillRecompute(updated int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditSkillRecompute,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"updated": updated},
	})
}
