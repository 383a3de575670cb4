package tool

import (
	"regexp"
	"strings"

	"github.com/agentcore/orchestrator/internal/tools/policy"
)

// DefaultMaxResultSize is the default maximum size, in bytes, a tool result
// is allowed to reach before truncation (64KB).
const DefaultMaxResultSize = 64 * 1024

// builtinSecretPatterns are always applied when a ResultGuard has
// SanitizeSecrets enabled, grounded on the teacher's
// agent.builtinSecretPatterns (internal/agent/tool_result_guard.go).
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w-\.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ResultGuard redacts and truncates tool output before it is stored in a
// conversation or shown back to a provider, so a leaked credential in a
// shell command's output doesn't get persisted or re-sent on the next turn.
type ResultGuard struct {
	Enabled         bool
	MaxChars        int
	Denylist        []string
	RedactPatterns  []string
	RedactionText   string
	TruncateSuffix  string
	SanitizeSecrets bool
}

func (g ResultGuard) active() bool {
	return g.Enabled || g.MaxChars > 0 || len(g.Denylist) > 0 || len(g.RedactPatterns) > 0 || g.RedactionText != "" || g.TruncateSuffix != "" || g.SanitizeSecrets
}

// Apply redacts toolName's content in place according to the guard's rules.
// resolver may be nil if Denylist entries are always literal tool names.
func (g ResultGuard) Apply(toolName, content string, resolver *policy.Resolver) string {
	if !g.active() {
		return content
	}

	redaction := strings.TrimSpace(g.RedactionText)
	if redaction == "" {
		redaction = "[REDACTED]"
	}
	truncateSuffix := strings.TrimSpace(g.TruncateSuffix)
	if truncateSuffix == "" {
		truncateSuffix = "...[truncated]"
	}

	if len(g.Denylist) > 0 && matchesToolPatterns(g.Denylist, toolName, resolver) {
		return redaction
	}

	if g.SanitizeSecrets && content != "" {
		for _, re := range builtinSecretPatterns {
			content = re.ReplaceAllString(content, redaction)
		}
	}

	if len(g.RedactPatterns) > 0 && content != "" {
		for _, pattern := range g.RedactPatterns {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			content = re.ReplaceAllString(content, redaction)
		}
	}

	if g.MaxChars > 0 && len(content) > g.MaxChars {
		cutoff := g.MaxChars
		if cutoff > len(content) {
			cutoff = len(content)
		}
		content = content[:cutoff] + truncateSuffix
	}

	return content
}

func matchesToolPatterns(patterns []string, toolName string, resolver *policy.Resolver) bool {
	name := toolName
	if resolver != nil {
		name = resolver.CanonicalName(toolName)
	}
	for _, p := range patterns {
		if p == name || p == toolName {
			return true
		}
		if strings.HasSuffix(p, "*") && strings.HasPrefix(name, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}

// DetectSecrets scans content for potential secrets, returning the names of
// every pattern that matched; useful for a debug log line before redaction.
func DetectSecrets(content string) []string {
	if content == "" {
		return nil
	}
	names := []string{"api_key", "bearer_token", "aws_key", "generic_secret", "private_key"}
	var matches []string
	for i, re := range builtinSecretPatterns {
		if re.MatchString(content) {
			matches = append(matches, names[i])
		}
	}
	return matches
}
