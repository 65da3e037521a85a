package session

import (
	"encoding/json"
	"strings"

	"github.com/calloway-health/consultline/internal/models"
)

// ReplyKind tags the classification of an assistant reply.
type ReplyKind string

const (
	ReplyNextQuestion ReplyKind = "next_question"
	ReplyFinalSummary ReplyKind = "final_summary"
)

// ClassifiedReply is the explicit result of classifying a reply; detection is
// never driven by parse errors as control flow.
type ClassifiedReply struct {
	Kind    ReplyKind
	Text    string
	Summary *models.ConsultationSummary
}

// ClassifyReply decides whether a reply is the terminal structured summary or
// another question for the caller. A reply counts as a summary only when the
// whole trimmed text is a JSON object carrying every required consultation
// field as a string. Anything else, including free text that happens to be
// wrapped in braces or a partially-populated object, is treated as a next
// question with the raw text preserved.
func ClassifyReply(text string) ClassifiedReply {
	asQuestion := ClassifiedReply{Kind: ReplyNextQuestion, Text: text}

	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return asQuestion
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return asQuestion
	}
	for _, key := range models.SummaryFields {
		raw, ok := fields[key]
		if !ok {
			return asQuestion
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return asQuestion
		}
	}

	var summary models.ConsultationSummary
	if err := json.Unmarshal([]byte(trimmed), &summary); err != nil {
		return asQuestion
	}
	return ClassifiedReply{Kind: ReplyFinalSummary, Text: trimmed, Summary: &summary}
}
