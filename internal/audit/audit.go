// Package audit records state-mutating dashboard actions.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/taskboard/internal/models"
	"github.com/fentz26/taskboard/internal/store"
)

// Writer writes audit entries for dashboard mutations.
type Writer struct {
	store *store.Store
}

// NewWriter creates a new audit writer.
func NewWriter(s *store.Store) *Writer {
	return &Writer{store: s}
}

// Record writes an audit entry. Inputs are stored as a hash only.
func (w *Writer) Record(action string, inputs interface{}, outcome string, id models.TaskID, details string) (*models.AuditEntry, error) {
	return w.store.WriteAudit(action, hashInputs(inputs), outcome, id, details)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
