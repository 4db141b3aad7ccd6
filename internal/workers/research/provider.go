package research

import (
	"context"
	"time"
)

// NewsItem is one news article about a company
type NewsItem struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
}

// Announcement is one official company disclosure
type Announcement struct {
	Title       string    `json:"title"`
	Category    string    `json:"category,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsProvider fetches recent news coverage for a stock
type NewsProvider interface {
	RecentNews(ctx context.Context, code string, limit int) ([]NewsItem, error)
}

// AnnouncementProvider fetches official disclosures for a stock
type AnnouncementProvider interface {
	RecentAnnouncements(ctx context.Context, code string, limit int) ([]Announcement, error)
}
