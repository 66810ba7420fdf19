package activity

import (
	"sort"
	"strings"
)

// Summary is the set of scalar facts sinks extract from a snapshot.
type Summary struct {
	Keys         []string
	ProjectName  string
	PageName     string
	ProductCount float64
	SubTotal     float64
	Total        float64
	HasCart      bool
}

// Summarize reads the well-known fields out of a snapshot. Missing or
// mistyped fields are left at their zero value.
func Summarize(snapshot map[string]any) Summary {
	summary := Summary{}
	for key := range snapshot {
		summary.Keys = append(summary.Keys, key)
	}
	sort.Strings(summary.Keys)

	summary.ProjectName, _ = snapshot["projectName"].(string)
	if page, ok := snapshot["page"].(map[string]any); ok {
		summary.PageName, _ = page["name"].(string)
	}
	if cart, ok := snapshot["cart"].(map[string]any); ok {
		summary.HasCart = true
		summary.ProductCount = number(cart["productCount"])
		summary.SubTotal = number(cart["subTotal"])
		summary.Total = number(cart["total"])
	}
	return summary
}

// Metadata renders the summary as event metadata.
func (s Summary) Metadata() map[string]any {
	meta := map[string]any{
		"keys": strings.Join(s.Keys, ","),
	}
	if s.ProjectName != "" {
		meta["project_name"] = s.ProjectName
	}
	if s.PageName != "" {
		meta["page_name"] = s.PageName
	}
	if s.HasCart {
		meta["cart_product_count"] = s.ProductCount
		meta["cart_sub_total"] = s.SubTotal
		meta["cart_total"] = s.Total
	}
	return meta
}

func number(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
