package exclusion

import (
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether an email should be skipped based on its sender domain
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new exclusion checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make([]string, 0, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(domain), "@")))
		if domain != "" {
			normalized = append(normalized, domain)
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized sender exclusion list", zap.Strings("domains", normalized))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// IsExcluded reports whether the sender's domain, or a parent of it, is on the list.
// from may be a bare address or a display form like "Jane <jane@example.com>".
func (c *Checker) IsExcluded(from string) bool {
	if c == nil || len(c.domains) == 0 {
		return false
	}

	domain := senderDomain(from)
	if domain == "" {
		return false
	}

	for _, excluded := range c.domains {
		if domain == excluded || strings.HasSuffix(domain, "."+excluded) {
			if c.logger != nil {
				c.logger.Debug("Sender domain is excluded",
					zap.String("domain", domain),
					zap.String("sender", from))
			}
			return true
		}
	}

	return false
}

func senderDomain(from string) string {
	address := strings.TrimSpace(from)
	if parsed, err := mail.ParseAddress(address); err == nil {
		address = parsed.Address
	}

	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(address[at+1:], ">"))
}
