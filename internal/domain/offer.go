package domain

import "time"

// StockFlag is the canonical availability state of an offer. Free-text
// vocabularies from scraped pages are mapped into this closed set by the
// extraction layer before the core ever sees them.
type StockFlag string

const (
	StockIn      StockFlag = "in_stock"
	StockOut     StockFlag = "out_of_stock"
	StockUnknown StockFlag = "unknown"
)

// NotificationState tracks the last availability state an offer was actually
// alerted for. It is decoupled from the offer's current stock flag so a state
// that was already communicated is never alerted twice.
type NotificationState string

const (
	NotifiedNever      NotificationState = "never"
	NotifiedInStock    NotificationState = "in_stock"
	NotifiedOutOfStock NotificationState = "out_of_stock"
	NotifiedRemoved    NotificationState = "removed"
)

// Offer is one scraped hosting listing. No single field is unique; identity
// across snapshots is established via the similarity oracle or key equality,
// never by assuming field stability.
type Offer struct {
	Name       string    `json:"original_name"`
	CostName   string    `json:"cost_effective_name"`
	CPU        string    `json:"cpu"`
	RAM        string    `json:"ram"`
	Storage    string    `json:"storage"`
	Bandwidth  string    `json:"bandwidth"`
	Traffic    string    `json:"traffic"`
	IPInfo     string    `json:"ip_address"`
	Price      string    `json:"price"`
	PriceValue string    `json:"price_value"`
	Currency   string    `json:"currency"`
	Discount   string    `json:"discount"`
	Stock      StockFlag `json:"stock"`
	Remark     string    `json:"remark"`
	OrderURL   string    `json:"order_url"`
}

// HasStructure reports whether the offer carries the three structural fields
// the similarity oracle needs to judge identity.
func (o Offer) HasStructure() bool {
	return o.CPU != "" && o.RAM != "" && o.Storage != ""
}

// HistoryRecord is one persisted entry of a source's history: the offer data
// seen last, the state it was last alerted for, and when the record was
// touched.
type HistoryRecord struct {
	Offer        Offer             `json:"offer"`
	LastNotified NotificationState `json:"last_notified"`
	LastUpdated  time.Time         `json:"last_updated"`
}

// SourceHistory maps record keys to history records for one monitored source.
// Each source owns an independent history with its own lifecycle.
type SourceHistory map[RecordKey]HistoryRecord

// Clone returns a shallow copy; records are value types so mutating the copy
// never touches the original map.
func (h SourceHistory) Clone() SourceHistory {
	out := make(SourceHistory, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
