package refiner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DebugPathEnv overrides where failed exchanges are dumped.
const DebugPathEnv = "METERMETER_LLM_DEBUG_PATH"

const defaultDebugFile = "metermeter_llm_debug.json"

type debugDump struct {
	Reason         string          `json:"reason"`
	Endpoint       string          `json:"endpoint"`
	Model          string          `json:"model"`
	RequestPayload json.RawMessage `json:"request_payload,omitempty"`
	RawResponse    string          `json:"raw_response"`
	CreatedAt      time.Time       `json:"created_at"`
}

// debugPath resolves the dump location: environment, then config, then the
// temp directory.
func (r *Refiner) debugPath() string {
	if p := strings.TrimSpace(os.Getenv(DebugPathEnv)); p != "" {
		return p
	}
	if p := strings.TrimSpace(r.cfg.DebugDumpPath); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), defaultDebugFile)
}

// dumpDebug writes the last failed exchange and returns the path. Write
// errors are logged, never returned.
func (r *Refiner) dumpDebug(ex exchange) string {
	path := r.debugPath()
	reason := ex.reason
	if reason == "" {
		reason = "results_failed_validation"
	}
	dump := debugDump{
		Reason:      reason,
		Endpoint:    r.cfg.Endpoint,
		Model:       r.cfg.Model,
		RawResponse: ex.raw,
		CreatedAt:   r.now().UTC(),
	}
	if len(ex.request.Messages) > 0 {
		if b, err := json.Marshal(ex.request); err == nil {
			dump.RequestPayload = b
		}
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err == nil {
		if dir := filepath.Dir(path); dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		r.logger.Warn("failed to write llm debug dump", zap.String("path", path), zap.Error(err))
	} else {
		r.logger.Info("llm debug dump written", zap.String("path", path), zap.String("reason", reason))
	}
	return path
}
