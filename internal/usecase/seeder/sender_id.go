package seeder

import (
	"fmt"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// SenderConfig is the admission-time sender identity policy: either a single
// configured sender id, or an allowlisted set in multi-sender mode.
type SenderConfig struct {
	SingleSenderID   string
	MultiSender      bool
	AllowedSenderIDs []string
}

// ValidateSenderID resolves and validates senderID against cfg. A nil or
// empty senderID in single-sender mode defaults to cfg.SingleSenderID. Every
// other case requires an exact match against the configured identity or
// allowlist, else returns domain.ErrSenderIDValidation wrapping the
// offending id.
func ValidateSenderID(cfg SenderConfig, senderID *string) (string, error) {
	id := ""
	if senderID != nil {
		id = *senderID
	}

	if !cfg.MultiSender {
		if id == "" {
			return cfg.SingleSenderID, nil
		}
		if id == cfg.SingleSenderID {
			return id, nil
		}
		return "", fmt.Errorf("op=ValidateSenderID sender_id=%s: %w", id, domain.ErrSenderIDValidation)
	}

	for _, allowed := range cfg.AllowedSenderIDs {
		if id != "" && id == allowed {
			return id, nil
		}
	}
	return "", fmt.Errorf("op=ValidateSenderID sender_id=%s: %w", id, domain.ErrSenderIDValidation)
}
