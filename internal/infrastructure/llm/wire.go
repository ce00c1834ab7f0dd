package llm

import (
	"strings"

	"offerwatch/internal/domain"
)

// wireOffer is the extraction schema as the model returns it. Stock arrives
// as free text and is mapped into the closed StockFlag vocabulary here, so
// the core never sees page-specific wording.
type wireOffer struct {
	Name       string `json:"original_name"`
	CostName   string `json:"cost_effective_name"`
	CPU        string `json:"cpu"`
	RAM        string `json:"ram"`
	Storage    string `json:"storage"`
	Bandwidth  string `json:"bandwidth"`
	Traffic    string `json:"traffic"`
	IPInfo     string `json:"ip_address"`
	Price      string `json:"price"`
	PriceValue string `json:"price_value"`
	Currency   string `json:"currency"`
	Discount   string `json:"discount"`
	Stock      string `json:"stock"`
	Remark     string `json:"remark"`
	OrderURL   string `json:"order_url"`
}

func (w wireOffer) toDomain() domain.Offer {
	return domain.Offer{
		Name:       clean(w.Name),
		CostName:   clean(w.CostName),
		CPU:        clean(w.CPU),
		RAM:        clean(w.RAM),
		Storage:    clean(w.Storage),
		Bandwidth:  clean(w.Bandwidth),
		Traffic:    clean(w.Traffic),
		IPInfo:     clean(w.IPInfo),
		Price:      clean(w.Price),
		PriceValue: clean(w.PriceValue),
		Currency:   clean(w.Currency),
		Discount:   clean(w.Discount),
		Stock:      parseStock(w.Stock),
		Remark:     clean(w.Remark),
		OrderURL:   clean(w.OrderURL),
	}
}

// clean drops the "Unknown"/"None" placeholders models emit for absent
// fields so the rest of the system can treat empty as missing.
func clean(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "unknown", "unkown", "none", "n/a", "无":
		return ""
	}
	return v
}

func parseStock(v string) domain.StockFlag {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "in_stock", "in stock", "available", "有货":
		return domain.StockIn
	case "out_of_stock", "out of stock", "sold out", "sold_out", "unavailable", "缺货", "售罄":
		return domain.StockOut
	default:
		return domain.StockUnknown
	}
}
