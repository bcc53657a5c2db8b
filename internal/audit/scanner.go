package audit

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/stratus/pkg/plugin"
)

// Rule flags suspicious content in plugin source files
type Rule struct {
	Name        string
	Severity    plugin.Severity
	Pattern     *regexp.Regexp
	Description string
}

// defaultRules covers the patterns a provisioning plugin has no business
// containing. Matches above SeverityMedium fail the audit.
var defaultRules = []Rule{
	{
		Name:        "curl-pipe-shell",
		Severity:    plugin.SeverityCritical,
		Pattern:     regexp.MustCompile(`curl[^\n|]*\|\s*(?:ba)?sh`),
		Description: "downloads and executes remote code",
	},
	{
		Name:        "recursive-root-delete",
		Severity:    plugin.SeverityCritical,
		Pattern:     regexp.MustCompile(`rm\s+-rf\s+/(?:\s|$|")`),
		Description: "recursive delete of filesystem root",
	},
	{
		Name:        "hardcoded-aws-key",
		Severity:    plugin.SeverityHigh,
		Pattern:     regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		Description: "hardcoded AWS access key",
	},
	{
		Name:        "hardcoded-private-key",
		Severity:    plugin.SeverityHigh,
		Pattern:     regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`),
		Description: "embedded private key material",
	},
	{
		Name:        "ssh-credential-read",
		Severity:    plugin.SeverityMedium,
		Pattern:     regexp.MustCompile(`(?:\$HOME|~)/\.(?:ssh|aws/credentials)`),
		Description: "reads credential files from the user home directory",
	},
}

// scannedExtensions limits scanning to files a plugin could execute
var scannedExtensions = map[string]bool{
	".go": true, ".sh": true, ".py": true, ".js": true, ".rb": true,
}

// Scanner is a static AuditService. It walks the plugin source directory
// and matches file contents against a fixed rule set.
type Scanner struct {
	rules         []Rule
	failThreshold plugin.Severity
	logger        zerolog.Logger
}

// NewScanner creates a scanner with the default rule set
func NewScanner() *Scanner {
	return &Scanner{
		rules:         defaultRules,
		failThreshold: plugin.SeverityHigh,
		logger:        log.With().Str("component", "audit").Logger(),
	}
}

// NewScannerWithRules creates a scanner with a custom rule set
func NewScannerWithRules(rules []Rule, failThreshold plugin.Severity) *Scanner {
	return &Scanner{
		rules:         rules,
		failThreshold: failThreshold,
		logger:        log.With().Str("component", "audit").Logger(),
	}
}

// Validate implements plugin.AuditService
func (s *Scanner) Validate(ctx context.Context, source plugin.Source, manifest *plugin.Manifest) (plugin.AuditReport, error) {
	eventID, _ := gonanoid.New()

	var findings []plugin.Finding
	err := filepath.WalkDir(source.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !scannedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, _ := filepath.Rel(source.Path, path)
		for _, rule := range s.rules {
			if rule.Pattern.Match(data) {
				findings = append(findings, plugin.Finding{
					Severity:    rule.Severity,
					Description: rule.Description + " (" + rule.Name + " in " + rel + ")",
				})
			}
		}
		return nil
	})
	if err != nil {
		return plugin.AuditReport{}, err
	}

	passed := true
	for _, f := range findings {
		if severityRank(f.Severity) >= severityRank(s.failThreshold) {
			passed = false
			break
		}
	}

	event := s.logger.Info()
	if !passed {
		event = s.logger.Warn()
	}
	event.
		Str("event_id", eventID).
		Str("plugin", manifest.ID).
		Str("path", source.Path).
		Int("findings", len(findings)).
		Bool("passed", passed).
		Msg("Plugin audit completed")

	return plugin.AuditReport{Passed: passed, Findings: findings}, nil
}

func severityRank(s plugin.Severity) int {
	switch s {
	case plugin.SeverityInfo:
		return 0
	case plugin.SeverityLow:
		return 1
	case plugin.SeverityMedium:
		return 2
	case plugin.SeverityHigh:
		return 3
	case plugin.SeverityCritical:
		return 4
	default:
		return 0
	}
}
