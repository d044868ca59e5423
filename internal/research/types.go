package research

import (
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_search"
)

// Status is the lifecycle state of a research task. It only moves forward.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPlanning  Status = "planning"
	StatusSearching Status = "searching"
	StatusScraping  Status = "scraping"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// basePercentage is reported while a task has no subtasks yet.
func (s Status) basePercentage() float64 {
	switch s {
	case StatusPlanning:
		return 10
	case StatusSearching:
		return 30
	case StatusScraping:
		return 60
	case StatusAnalyzing:
		return 85
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// SubtaskStatus tracks one planned query through search and scrape.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskSearching SubtaskStatus = "searching"
	SubtaskScraping  SubtaskStatus = "scraping"
	SubtaskCompleted SubtaskStatus = "completed"
)

// SearchResult is one hit attached to a subtask.
type SearchResult = web_search.SearchResult

// ResearchTask is the unit of work owned by the Orchestrator.
type ResearchTask struct {
	ID         string            `json:"id"`
	Query      string            `json:"query"`
	Status     Status            `json:"status"`
	Error      string            `json:"error,omitempty"` // failure reason when Status is failed
	Plan       *Plan             `json:"plan,omitempty"`
	Subtasks   []ResearchSubtask `json:"subtasks"`
	Results    []ResearchResult  `json:"results"`
	Conclusion string            `json:"conclusion,omitempty"`
	Degraded   bool              `json:"degraded"`
	Warnings   []string          `json:"warnings,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ResearchSubtask is one planned search query.
type ResearchSubtask struct {
	ID            string         `json:"id"`
	Query         string         `json:"query"`
	Status        SubtaskStatus  `json:"status"`
	SearchResults []SearchResult `json:"search_results"`
	Source        string         `json:"source,omitempty"` // browser or http
}

// ResearchResult is the relevant excerpt scraped from one search hit.
type ResearchResult struct {
	ID             string    `json:"id"`
	SubtaskID      string    `json:"subtask_id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	RelevanceScore float64   `json:"relevance_score"`
	ScrapedAt      time.Time `json:"scraped_at"`
	Excerpt        bool      `json:"excerpt,omitempty"` // content is a raw excerpt, not an LLM extraction
}

// Plan is the decomposition of a query into search queries.
type Plan struct {
	MainTopic       string   `json:"main_topic"`
	Category        string   `json:"category"`
	Subtopics       []string `json:"subtopics"`
	SearchQueries   []string `json:"search_queries"`
	RequiresBrowser bool     `json:"requires_browser"`
	IsTimeSensitive bool     `json:"is_time_sensitive"`
	Fallback        bool     `json:"fallback,omitempty"` // produced by the deterministic planner
}

// SubtaskProgress is the per-subtask view carried by progress events.
type SubtaskProgress struct {
	ID           string        `json:"id"`
	Query        string        `json:"query"`
	Status       SubtaskStatus `json:"status"`
	ResultsFound int           `json:"results_found"`
	ScrapedPages int           `json:"scraped_pages"`
}

// ProgressEvent reports task progress. The last event of a task has Final set.
type ProgressEvent struct {
	TaskID            string            `json:"task_id"`
	Status            Status            `json:"status"`
	CurrentOperation  string            `json:"current_operation,omitempty"`
	Percentage        float64           `json:"percentage"`
	PhaseLabel        string            `json:"phase_label,omitempty"`
	CompletedSubtasks int               `json:"completed_subtasks"`
	TotalSubtasks     int               `json:"total_subtasks"`
	Subtasks          []SubtaskProgress `json:"subtasks,omitempty"`
	Degraded          bool              `json:"degraded"`
	Final             bool              `json:"final"`
	Error             string            `json:"error,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// ResultEvent announces one newly scraped result.
type ResultEvent struct {
	TaskID       string         `json:"task_id"`
	Result       ResearchResult `json:"result"`
	SubtaskQuery string         `json:"subtask_query"`
}

// clone returns a deep copy safe to hand to callers.
func (t *ResearchTask) clone() *ResearchTask {
	if t == nil {
		return nil
	}
	out := *t
	if t.Plan != nil {
		p := *t.Plan
		p.Subtopics = append([]string(nil), t.Plan.Subtopics...)
		p.SearchQueries = append([]string(nil), t.Plan.SearchQueries...)
		out.Plan = &p
	}
	if t.Subtasks != nil {
		out.Subtasks = make([]ResearchSubtask, len(t.Subtasks))
		for i, st := range t.Subtasks {
			st.SearchResults = append([]SearchResult(nil), st.SearchResults...)
			out.Subtasks[i] = st
		}
	}
	out.Results = append([]ResearchResult(nil), t.Results...)
	out.Warnings = append([]string(nil), t.Warnings...)
	return &out
}

func (t *ResearchTask) completedSubtasks() int {
	n := 0
	for _, st := range t.Subtasks {
		if st.Status == SubtaskCompleted {
			n++
		}
	}
	return n
}

// percentage is completed/total once subtasks exist, else the status base.
func (t *ResearchTask) percentage() float64 {
	if len(t.Subtasks) == 0 {
		return t.Status.basePercentage()
	}
	return float64(t.completedSubtasks()) / float64(len(t.Subtasks)) * 100
}

func (t *ResearchTask) progress(operation string) ProgressEvent {
	ev := ProgressEvent{
		TaskID:            t.ID,
		Status:            t.Status,
		CurrentOperation:  operation,
		Percentage:        t.percentage(),
		PhaseLabel:        phaseLabel(t.Status),
		CompletedSubtasks: t.completedSubtasks(),
		TotalSubtasks:     len(t.Subtasks),
		Degraded:          t.Degraded,
		Final:             t.Status.Terminal(),
		Error:             t.Error,
		Timestamp:         t.UpdatedAt,
	}
	if len(t.Subtasks) > 0 {
		scraped := make(map[string]int, len(t.Subtasks))
		for _, r := range t.Results {
			scraped[r.SubtaskID]++
		}
		ev.Subtasks = make([]SubtaskProgress, len(t.Subtasks))
		for i, st := range t.Subtasks {
			ev.Subtasks[i] = SubtaskProgress{
				ID:           st.ID,
				Query:        st.Query,
				Status:       st.Status,
				ResultsFound: len(st.SearchResults),
				ScrapedPages: scraped[st.ID],
			}
		}
	}
	return ev
}

func phaseLabel(s Status) string {
	switch s {
	case StatusPending:
		return "Queued"
	case StatusPlanning:
		return "Planning research"
	case StatusSearching:
		return "Searching the web"
	case StatusScraping:
		return "Reading sources"
	case StatusAnalyzing:
		return "Synthesizing findings"
	case StatusCompleted:
		return "Research complete"
	case StatusFailed:
		return "Research failed"
	}
	return ""
}
