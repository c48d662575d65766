package tools

import (
	"context"
	"fmt"
	"strings"

	"bytebuddy/internal/database"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

const (
	summaryLength  = 500
	wordsPerMinute = 200
)

var noteTags = []string{"important", "summary", "key", "concept", "formula", "example"}

// NoteRequest is the body of POST /api/notes/generate
type NoteRequest struct {
	Content    string `json:"content"`
	SourceType string `json:"sourceType"` // informational, content arrives as text
	Format     string `json:"format"`
	Title      string `json:"title"`
}

// NoteResult is a stored note and the admission it consumed
type NoteResult struct {
	Note     *database.Note  `json:"note"`
	Decision *quota.Decision `json:"usage"`
}

// GenerateNote summarizes content into a stored note
func (s *Service) GenerateNote(ctx context.Context, acct *database.Account, req NoteRequest) (*NoteResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, invalid("content", "is required")
	}

	decision, err := s.admit(ctx, acct, usage.FeatureNotes)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	note := &database.Note{
		AccountID: acct.ID,
		Title:     orDefault(strings.TrimSpace(req.Title), "Note "+now.Format("2006-01-02")),
		Content:   req.Content,
		Summary:   Summarize(req.Content),
		Format:    orDefault(req.Format, "bullet"),
		Tags:      ExtractTags(req.Content),
		Metadata:  AnalyzeText(req.Content),
		CreatedAt: now,
	}

	if err := s.store.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	return &NoteResult{Note: note, Decision: decision}, nil
}

// Summarize returns the first 500 characters of content, marked when cut
func Summarize(content string) string {
	r := []rune(content)
	if len(r) <= summaryLength {
		return content
	}
	return string(r[:summaryLength]) + "..."
}

// AnalyzeText computes word count, reading time and complexity
func AnalyzeText(content string) database.NoteMetadata {
	words := len(strings.Fields(content))
	readingTime := (words + wordsPerMinute - 1) / wordsPerMinute

	complexity := "low"
	switch {
	case words > 1000:
		complexity = "high"
	case words > 500:
		complexity = "medium"
	}

	return database.NoteMetadata{
		WordCount:   words,
		ReadingTime: readingTime,
		Complexity:  complexity,
	}
}

// ExtractTags returns the known keywords that occur in content
func ExtractTags(content string) []string {
	lower := strings.ToLower(content)
	tags := make([]string, 0, len(noteTags))
	for _, tag := range noteTags {
		if strings.Contains(lower, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}
