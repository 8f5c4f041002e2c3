package models

// RawRow is one untransformed row of an adapter payload. Adapters use the
// keys id, title, desc, hot, timestamp, url and mobileUrl where they can;
// anything else is carried through to HotItem.Raw.
type RawRow = map[string]any

// SourcePayload is what a source adapter returns and what the cache stores
type SourcePayload struct {
	Title string   `json:"title"`
	Type  string   `json:"type,omitempty"`
	Link  string   `json:"link,omitempty"`
	Data  []RawRow `json:"data"`
}

// HotItem is a canonical trending entry
type HotItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	MobileURL string `json:"mobileUrl,omitempty"`
	Desc      string `json:"desc,omitempty"`
	// Hot is a number or a string, passed through as the adapter reported it
	Hot       any    `json:"hot,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Source    string `json:"source"`
	Raw       RawRow `json:"raw"`
}

// HotFeed is the normalized feed of one source
type HotFeed struct {
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	Type       string    `json:"type,omitempty"`
	Link       string    `json:"link,omitempty"`
	Total      int       `json:"total"`
	FromCache  bool      `json:"fromCache"`
	UpdateTime string    `json:"updateTime"`
	Items      []HotItem `json:"items"`
}

// AggregateHotData is the merged feed across sources
type AggregateHotData struct {
	Sources       []string  `json:"sources"`
	Total         int       `json:"total"`
	UpdateTime    string    `json:"updateTime"`
	FailedSources []string  `json:"failedSources"`
	Items         []HotItem `json:"items"`
}

// StandardOptions controls a single-source read
type StandardOptions struct {
	// Limit truncates the items; zero or negative means no limit
	Limit   int
	NoCache bool
}

// AggregateOptions controls an aggregate read
type AggregateOptions struct {
	// Sources restricts the candidates; empty means every source
	Sources []string
	Limit   int
}

// DefaultAggregateLimit applies when AggregateOptions.Limit is not positive
const DefaultAggregateLimit = 50
