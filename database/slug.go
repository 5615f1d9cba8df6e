package database

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"
)

const (
	maxSlugLength   = 200
	maxSlugAttempts = 100
)

// SlugOutcome tells how GenerateUniqueSlug terminated.
type SlugOutcome int

const (
	// SlugUnique: the base slug or a numbered variant was free.
	SlugUnique SlugOutcome = iota
	// SlugForcedFallback: every numbered variant was taken and a timestamp suffix was used.
	SlugForcedFallback
)

func (o SlugOutcome) String() string {
	if o == SlugForcedFallback {
		return "forced_fallback"
	}
	return "unique"
}

type SlugQuery struct {
	Table  string
	Column string
	Text   string
	// ExcludeID skips the row being updated so it does not collide with itself.
	ExcludeID string
}

type SlugResult struct {
	Slug    string
	Outcome SlugOutcome
}

// GenerateSlug turns text into a URL-safe slug: lowercase, letters/digits/CJK kept, whitespace
// and underscores become single hyphens, at most 200 runes. Text with nothing usable yields
// item-<unix millis>.
func GenerateSlug(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))

	var b strings.Builder
	pendingHyphen := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || r == '_' || r == '-':
			pendingHyphen = b.Len() > 0
		case isSlugRune(r):
			if pendingHyphen {
				b.WriteByte('-')
				pendingHyphen = false
			}
			b.WriteRune(r)
		}
	}

	slug := truncateRunes(b.String(), maxSlugLength)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fmt.Sprintf("item-%d", time.Now().UnixMilli())
	}
	return slug
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || unicode.Is(unicode.Han, r)
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// GenerateUniqueSlug derives a slug from q.Text and checks q.Table for collisions, appending
// -1, -2, ... until a free value is found. After maxSlugAttempts numbered attempts the current
// timestamp is appended instead and the outcome is SlugForcedFallback.
func GenerateUniqueSlug(ctx context.Context, db *gorm.DB, q SlugQuery) (SlugResult, error) {
	if !isIdentifier(q.Table) || !isIdentifier(q.Column) {
		return SlugResult{}, fmt.Errorf("invalid slug target %q.%q", q.Table, q.Column)
	}

	base := GenerateSlug(q.Text)

	taken, err := slugExists(ctx, db, q, base)
	if err != nil {
		return SlugResult{}, err
	}
	if !taken {
		return SlugResult{Slug: base, Outcome: SlugUnique}, nil
	}

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%d", base, attempt)
		taken, err := slugExists(ctx, db, q, candidate)
		if err != nil {
			return SlugResult{}, err
		}
		if !taken {
			return SlugResult{Slug: candidate, Outcome: SlugUnique}, nil
		}
	}

	return SlugResult{
		Slug:    fmt.Sprintf("%s-%d", base, time.Now().UnixMilli()),
		Outcome: SlugForcedFallback,
	}, nil
}

func slugExists(ctx context.Context, db *gorm.DB, q SlugQuery, candidate string) (bool, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", q.Table, q.Column)
	args := []interface{}{candidate}
	if q.ExcludeID != "" {
		query += " AND id <> ?"
		args = append(args, q.ExcludeID)
	}
	query += " LIMIT 1"

	var ids []string
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
