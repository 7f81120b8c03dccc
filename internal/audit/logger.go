package audit

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
)

// Event is an operational audit line. It complements the audit_records table,
// which only holds successful balance changes.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger writes audit events as JSON through logrus.
type Logger struct {
	entry *log.Entry
}

func NewLogger(logger *log.Logger) *Logger {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Logger{entry: logger.WithField("component", "audit")}
}

func (a *Logger) LogMutation(reference, accountID, kind string, delta, balanceAfter int64) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "BALANCE_" + kind,
		Reference: reference,
		AccountID: accountID,
		Amount:    delta,
		Status:    "SUCCESS",
		Details:   map[string]int64{"balance_after": balanceAfter},
	})
}

// LogIntegrityViolation records a rejected payment or referral callback.
func (a *Logger) LogIntegrityViolation(reference, accountID, reason string, details map[string]any) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "INTEGRITY_VIOLATION",
		Reference: reference,
		AccountID: accountID,
		Status:    "REJECTED",
		Details:   mergeReason(details, reason),
	})
}

// LogLateConfirmation records a confirmation that revived a failed intent.
func (a *Logger) LogLateConfirmation(reference, accountID string, tokens int64, previousStatus string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "LATE_CONFIRMATION",
		Reference: reference,
		AccountID: accountID,
		Amount:    tokens,
		Status:    "RECOVERED",
		Details:   map[string]string{"previous_status": previousStatus},
	})
}

func (a *Logger) LogError(reference, accountID string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

// LogDrift records a reconciliation mismatch between balance and ledger.
func (a *Logger) LogDrift(accountID string, balance, ledgerSum int64) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "LEDGER_DRIFT",
		AccountID: accountID,
		Amount:    balance - ledgerSum,
		Status:    "MISMATCH",
		Details:   map[string]int64{"balance": balance, "ledger_sum": ledgerSum},
	})
}

func (a *Logger) log(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		a.entry.WithError(err).Error("failed to encode audit event")
		return
	}
	if event.Status == "SUCCESS" {
		a.entry.Info("AUDIT: " + string(data))
		return
	}
	a.entry.Warn("AUDIT: " + string(data))
}

func mergeReason(details map[string]any, reason string) map[string]any {
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["reason"] = reason
	return out
}
