// -----------------------------------------------------------------------
// Research worker - Concept credibility investigation work function
// -----------------------------------------------------------------------

package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/jobs"
)

// Phases maps each research stage onto the global progress scale
var Phases = jobs.PhaseMap{
	"collect_news":          {Start: 0, End: 35},
	"collect_announcements": {Start: 35, End: 55},
	"analyze":               {Start: 55, End: 90},
	"compose":               {Start: 90, End: 100},
}

const evidenceLimit = 20

// Params identifies the stock and the concept under investigation
type Params struct {
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Concept string `json:"concept"`
}

// Result is the research job's terminal payload
type Result struct {
	Code              string `json:"code"`
	Concept           string `json:"concept"`
	NewsCount         int    `json:"news_count"`
	AnnouncementCount int    `json:"announcement_count"`
	Analysis          string `json:"analysis"`
}

// Worker investigates how credible a stock's link to a market concept is:
// collect news and disclosures, then have the analyzer weigh the evidence
type Worker struct {
	news          NewsProvider
	announcements AnnouncementProvider
	analyzer      Analyzer
	logger        arbor.ILogger
}

// NewWorker creates a research worker
func NewWorker(news NewsProvider, announcements AnnouncementProvider, analyzer Analyzer, logger arbor.ILogger) *Worker {
	return &Worker{
		news:          news,
		announcements: announcements,
		analyzer:      analyzer,
		logger:        logger,
	}
}

// Factory returns the WorkFactory registered under the "research" kind
func (w *Worker) Factory() interfaces.WorkFactory {
	return func(params json.RawMessage) (interfaces.WorkFunc, error) {
		var p Params
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid research params: %w", err)
			}
		}
		if p.Code == "" {
			return nil, fmt.Errorf("research params require a stock code")
		}
		if p.Concept == "" {
			return nil, fmt.Errorf("research params require a concept")
		}

		return w.run(p), nil
	}
}

func (w *Worker) run(p Params) interfaces.WorkFunc {
	return func(ctx context.Context, report interfaces.ProgressFunc) (json.RawMessage, error) {
		report(Phases.Percent("collect_news", 0, 1), "collect_news", map[string]interface{}{
			"code": p.Code,
		})

		news, err := w.news.RecentNews(ctx, p.Code, evidenceLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to collect news: %w", err)
		}
		report(Phases.Percent("collect_news", 1, 1), "collect_news", map[string]interface{}{
			"collected": len(news),
		})

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		report(Phases.Percent("collect_announcements", 0, 1), "collect_announcements", nil)
		announcements, err := w.announcements.RecentAnnouncements(ctx, p.Code, evidenceLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to collect announcements: %w", err)
		}
		report(Phases.Percent("collect_announcements", 1, 1), "collect_announcements", map[string]interface{}{
			"collected": len(announcements),
		})

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		report(Phases.Percent("analyze", 0, 1), "analyze", nil)
		analysis, err := w.analyzer.Analyze(ctx, buildPrompt(p, news, announcements))
		if err != nil {
			return nil, fmt.Errorf("analysis failed: %w", err)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		report(Phases.Percent("compose", 0, 1), "compose", nil)

		result := Result{
			Code:              p.Code,
			Concept:           p.Concept,
			NewsCount:         len(news),
			AnnouncementCount: len(announcements),
			Analysis:          analysis,
		}

		w.logger.Info().
			Str("code", p.Code).
			Str("concept", p.Concept).
			Int("news", result.NewsCount).
			Int("announcements", result.AnnouncementCount).
			Msg("Research run finished")

		return json.Marshal(result)
	}
}

// buildPrompt assembles the collected evidence into the analyzer prompt
func buildPrompt(p Params, news []NewsItem, announcements []Announcement) string {
	var b strings.Builder

	name := p.Name
	if name == "" {
		name = p.Code
	}
	fmt.Fprintf(&b, "Company: %s (%s)\nConcept under investigation: %s\n\n", name, p.Code, p.Concept)

	b.WriteString("Recent news coverage:\n")
	if len(news) == 0 {
		b.WriteString("- none found\n")
	}
	for _, item := range news {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", item.PublishedAt.Format("2006-01-02"), item.Title, item.Source)
		if item.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", item.Summary)
		}
	}

	b.WriteString("\nOfficial announcements:\n")
	if len(announcements) == 0 {
		b.WriteString("- none found\n")
	}
	for _, item := range announcements {
		fmt.Fprintf(&b, "- [%s] %s\n", item.PublishedAt.Format("2006-01-02"), item.Title)
	}

	b.WriteString("\nAssess how credible the company's association with this concept is. Cover: main business fit, substantive evidence (patents, orders, partnerships), any history of riding market hype, and supply chain plausibility.")
	return b.String()
}
