package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"offerwatch/internal/domain"
)

func extractPrompt(content, instruction string) string {
	var b strings.Builder
	b.WriteString("Below is the text content of a web page. Identify every valid server/hosting offer in it.\n")
	b.WriteString("A valid offer combines a CPU model (e.g. 'Intel Core', 'AMD EPYC'), a memory size (e.g. 'GB DDR', 'GB RAM'), ")
	b.WriteString("a storage type and capacity (e.g. 'GB SSD', 'TB NVMe') and a price. Ignore navigation, footers and ads.\n")
	if instruction != "" {
		fmt.Fprintf(&b, "Only extract offers matching this requirement: %s\n", instruction)
	}
	b.WriteString(`For every offer extract these attributes:
- original_name: the offer's original name or primary identifier (e.g. the CPU model).
- cost_effective_name: a short nickname you coin reflecting the offer's value for money.
- cpu, ram, storage: the hardware configuration strings.
- price_value: the numeric price without currency symbol.
- currency: the currency symbol or code ('$', 'EUR', ...).
- price: the raw price string including currency and billing period (e.g. "$77.57/year").
- stock: exactly one of "in_stock", "out_of_stock", "unknown". Prefer "in_stock" when the page shows buy/cart buttons; use "out_of_stock" only when the page explicitly says sold out or unavailable; otherwise "unknown".
- discount: discount info, or "" when none.
- bandwidth, traffic, ip_address: connectivity details when present.
- remark: a concise product remark from the page, or "".
- order_url: the full URL of the order button/link belonging to this exact offer.
Return a JSON array of objects with these attributes (use "" for anything unknown).
Return an empty JSON array [] when no valid offers exist.
IMPORTANT: if you cannot identify offers directly but the page clearly links to an offer listing page, return {"suggested_url": "<full url>"} instead.
Return only JSON, no explanations and no markdown fences.

Page content:
`)
	b.WriteString(content)
	return b.String()
}

func judgePrompt(a, b domain.Offer) string {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)

	var p strings.Builder
	p.WriteString("Decide whether the two server offers below (JSON, ignore the cost_effective_name field) represent the same product. ")
	p.WriteString("Compare CPU, memory, storage and price. The strings may carry noise; extract the essentials ('1vCore' and 'CPU 1vCore' are equivalent). ")
	p.WriteString("Treat them as the same product when the core configuration matches even if the wording differs.\n")
	fmt.Fprintf(&p, "Offer 1:\n%s\n\nOffer 2:\n%s\n\n", aj, bj)
	p.WriteString(`Reply with only {"similar": true} or {"similar": false}.`)
	return p.String()
}

func evalPrompt(current, previous []domain.Offer) string {
	cj, _ := json.Marshal(current)

	var p strings.Builder
	fmt.Fprintf(&p, "Current server offers (JSON):\n%s\n\n", cj)
	if len(previous) > 0 {
		pj, _ := json.Marshal(previous)
		fmt.Fprintf(&p, "Offers seen on the previous check (JSON):\n%s\n\n", pj)
		p.WriteString("Write a short, punchy verdict on the current list, using the previous list to spot arrivals and departures. Mention: ")
	} else {
		p.WriteString("This is the first check of this page. Write a short, punchy verdict on the list. Mention: ")
	}
	p.WriteString("overall stock situation, standout value picks, and a buying take. At most 100 words. Return only the verdict text.")
	return p.String()
}
