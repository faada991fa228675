package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// VerifyResult reports whether any candidate hash matches a recorded
// revision, exactly or after canonicalization.
type VerifyResult struct {
	Verified bool
	// Revision is the matching revision, nil when unverified.
	Revision *models.Revision
	// MatchedHash is the candidate that matched.
	MatchedHash string
	// Method is "exact" or the canonicalization that produced the match.
	Method string
}

// VerifyHash checks candidate content hashes against the revision log.
// Exact lookups run first. When they fail and a meeting id is supplied,
// each of the meeting's revisions is decrypted and re-hashed under
// canonicalized renderings; this accommodates clients that hash text
// extracted from exported PDFs, where whitespace and layout drift.
func (o *Orchestrator) VerifyHash(ctx context.Context, meetingID string, candidates []string) (*VerifyResult, error) {
	set := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		set[c] = true

		rev, err := o.store.FindRevisionByHash(ctx, c)
		if err == nil {
			return &VerifyResult{Verified: true, Revision: rev, MatchedHash: c, Method: "exact"}, nil
		}
		if !errors.Is(err, models.ErrRevisionNotFound) {
			return nil, err
		}
	}

	if meetingID == "" || len(set) == 0 {
		return &VerifyResult{}, nil
	}
	return o.verifyFuzzy(ctx, meetingID, set)
}

func (o *Orchestrator) verifyFuzzy(ctx context.Context, meetingID string, candidates map[string]bool) (*VerifyResult, error) {
	key, iv, err := o.store.GetMeetingKey(ctx, meetingID)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) || errors.Is(err, models.ErrMeetingNotFound) {
			return &VerifyResult{}, nil
		}
		return nil, err
	}

	revs, err := o.store.ListAllRevisions(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	for _, rev := range revs {
		cleartext, err := o.vault.DecryptFileToBuffer(rev.FilePath, key, iv)
		if err != nil {
			logger.Warn("skipping unreadable revision during verification",
				logger.KeyMeetingID, meetingID, logger.KeyVersion, rev.Version, logger.KeyError, err)
			continue
		}

		for method, variant := range canonicalVariants(models.ArtifactKind(rev.Kind), cleartext) {
			h := crypto.ContentHash(variant)
			if candidates[h] {
				logger.Info("hash verified via canonicalization",
					logger.KeyMeetingID, meetingID, logger.KeyVersion, rev.Version, "method", method)
				return &VerifyResult{Verified: true, Revision: rev, MatchedHash: h, Method: method}, nil
			}
		}
	}
	return &VerifyResult{}, nil
}

// canonicalVariants renders a decrypted artifact blob into the textual
// forms a client might have hashed.
func canonicalVariants(kind models.ArtifactKind, cleartext []byte) map[string]string {
	variants := make(map[string]string)

	switch kind {
	case models.KindTranscript:
		var t engine.Transcript
		if err := json.Unmarshal(cleartext, &t); err != nil {
			return variants
		}
		variants["text"] = t.Text
		variants["text_collapsed"] = collapseWhitespace(t.Text)

	case models.KindSummary:
		var s engine.Summary
		if err := json.Unmarshal(cleartext, &s); err != nil {
			return variants
		}
		variants["summary"] = s.Summary
		variants["summary_collapsed"] = collapseWhitespace(s.Summary)

		rendered := renderSummary(&s)
		variants["summary_rendered"] = rendered
		variants["summary_rendered_collapsed"] = collapseWhitespace(rendered)
	}
	return variants
}

// renderSummary reproduces the document layout of an exported summary.
func renderSummary(s *engine.Summary) string {
	var b strings.Builder
	b.WriteString("SUMMARY: ")
	b.WriteString(s.Summary)
	b.WriteString("\n\nACTION ITEMS:\n")
	for _, action := range s.Actions {
		b.WriteString("- ")
		b.WriteString(action)
		b.WriteString("\n")
	}
	return b.String()
}

// collapseWhitespace folds every whitespace run into a single space and
// trims the ends, mirroring what PDF text extraction does to layout.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
