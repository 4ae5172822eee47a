package analysis

import "strings"

// stageKeys are the fields that may carry declared processing stages,
// in lookup order.
var stageKeys = []string{"feedback_steps", "steps", "stages"}

// Company is the company metadata of one analyzed ticker.
type Company struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name" yaml:"name"`
	Sector   string `json:"sector" yaml:"sector"`
	Industry string `json:"industry" yaml:"industry"`
}

// Valuation holds the valuation metrics of one analyzed ticker.
// Values are display strings; missing metrics are Unknown.
type Valuation struct {
	MarketCap     string `json:"market_cap" yaml:"market_cap"`
	TrailingPE    string `json:"trailing_pe" yaml:"trailing_pe"`
	ForwardPE     string `json:"forward_pe" yaml:"forward_pe"`
	DividendYield string `json:"dividend_yield" yaml:"dividend_yield"`
	High52w       string `json:"high_52w" yaml:"high_52w"`
	Low52w        string `json:"low_52w" yaml:"low_52w"`
	AverageVolume string `json:"average_volume" yaml:"average_volume"`
}

// NewsItem is one recent headline.
type NewsItem struct {
	Title string `json:"title" yaml:"title"`
	Link  string `json:"link,omitempty" yaml:"link,omitempty"`
}

// TickerAnalysis is the per-ticker section of a structured result.
type TickerAnalysis struct {
	Ticker    string     `json:"ticker" yaml:"ticker"`
	Company   Company    `json:"company" yaml:"company"`
	Valuation Valuation  `json:"valuation" yaml:"valuation"`
	News      []NewsItem `json:"news" yaml:"news"`
	// Error is set when the service could not fetch this ticker's data.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Stages returns the raw stage descriptors declared by the payload,
// or nil when none are present.
func (r Result) Stages() []any {
	for _, key := range stageKeys {
		v, ok := r.Field(key)
		if !ok {
			continue
		}
		if list, ok := lift(v).([]any); ok {
			return list
		}
	}
	return nil
}

// Tickers returns the per-ticker analyses. A multi-ticker payload carries
// them under "results"; a single-ticker payload carries "ticker" at the
// top level.
func (r Result) Tickers() []TickerAnalysis {
	obj := r.Object()
	if obj == nil {
		return nil
	}
	if list, ok := lift(obj["results"]).([]any); ok {
		out := make([]TickerAnalysis, 0, len(list))
		for _, item := range list {
			if m, ok := lift(item).(map[string]any); ok {
				out = append(out, tickerFrom(m))
			}
		}
		return out
	}
	if _, ok := walk(obj, "ticker"); ok {
		return []TickerAnalysis{tickerFrom(obj)}
	}
	if _, ok := walk(obj, "symbol"); ok {
		return []TickerAnalysis{tickerFrom(obj)}
	}
	return nil
}

// Ticker returns the first analyzed ticker symbol, or Unknown.
func (r Result) Ticker() string {
	tickers := r.Tickers()
	if len(tickers) == 0 {
		return Unknown
	}
	return tickers[0].Ticker
}

// Summary returns the optional narrative summary, or Unknown.
func (r Result) Summary() string { return r.String("summary") }

// Disclaimer returns the service disclaimer, or Unknown.
func (r Result) Disclaimer() string { return r.String("disclaimer") }

// ScreenQuery returns the query echoed back by the service, or Unknown.
func (r Result) ScreenQuery() string { return r.String("screen_query") }

func tickerFrom(m map[string]any) TickerAnalysis {
	ticker := pick(m, "ticker", "symbol")

	info := m
	if nested, ok := lift(m["key_information"]).(map[string]any); ok {
		info = nested
	}

	symbol := pick(info, "Symbol", "symbol")
	if symbol == Unknown {
		symbol = ticker
	}
	if ticker == Unknown {
		ticker = symbol
	}

	ta := TickerAnalysis{
		Ticker: ticker,
		Company: Company{
			Symbol:   symbol,
			Name:     pick(info, "Company Name", "longName", "shortName", "name"),
			Sector:   pick(info, "Sector", "sector"),
			Industry: pick(info, "Industry", "industry"),
		},
		Valuation: Valuation{
			MarketCap:     pick(info, "Market Cap", "marketCap"),
			TrailingPE:    pick(info, "Trailing PE", "trailingPE"),
			ForwardPE:     pick(info, "Forward PE", "forwardPE"),
			DividendYield: pick(info, "Dividend Yield", "dividendYield"),
			High52w:       pick(info, "52w High", "fiftyTwoWeekHigh"),
			Low52w:        pick(info, "52w Low", "fiftyTwoWeekLow"),
			AverageVolume: pick(info, "Average Volume", "averageVolume"),
		},
		News: newsFrom(m),
	}
	if s, ok := info["error"].(string); ok {
		ta.Error = strings.TrimSpace(s)
	}
	return ta
}

func newsFrom(m map[string]any) []NewsItem {
	raw, ok := lift(m["recent_news"]).([]any)
	if !ok {
		raw, _ = lift(m["news"]).([]any)
	}
	var out []NewsItem
	for _, item := range raw {
		switch tv := lift(item).(type) {
		case map[string]any:
			_, hasTitle := tv["title"]
			_, hasHeadline := tv["headline"]
			if !hasTitle && !hasHeadline {
				// {"note": ...} and {"error": ...} placeholders
				continue
			}
			link := pick(tv, "link", "url")
			if link == Unknown {
				link = ""
			}
			out = append(out, NewsItem{Title: pick(tv, "title", "headline"), Link: link})
		case string:
			if s := strings.TrimSpace(tv); s != "" {
				out = append(out, NewsItem{Title: s})
			}
		}
	}
	return out
}

// pick returns the first present key formatted for display, or Unknown.
func pick(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := walk(m, key); ok {
			if s := displayString(v); s != Unknown {
				return s
			}
		}
	}
	return Unknown
}
