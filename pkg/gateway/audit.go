package gateway

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/types"
)

// AuditLog appends one JSON line per gateway request. It never receives or
// writes a token's plaintext or hashed secret — only the token's id.
type AuditLog struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// NewAuditLog returns an AuditLog appending to path, creating its parent
// directory if necessary.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &AuditLog{path: path, logger: log.WithComponent("gateway_audit")}, nil
}

// Append writes one audit record. Failures are logged but never returned to
// the caller: an audit-log write failure must not block the request it is
// auditing.
func (a *AuditLog) Append(rec types.AuditRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to open audit log")
		return
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to marshal audit record")
		return
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write audit record")
	}
}

// Record builds an AuditRecord and appends it, computing duration from
// start.
func (a *AuditLog) Record(tokenID, method, path string, status int, start time.Time) {
	a.Append(types.AuditRecord{
		Timestamp:  start,
		TokenID:    tokenID,
		Method:     method,
		Path:       path,
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
	})
}
