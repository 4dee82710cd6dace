package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event kinds, used as the suffix of the stream name.
const (
	EventKindProduct  = "product"
	EventKindCheckout = "checkout"
	EventKindNews     = "news"
	EventKindPage     = "page"
)

// StreamOffline is stored in place of a stream id when publishing failed.
const StreamOffline = "offline"

// EventRecord is the flat field/value form of an event as it is appended to
// a stream.
type EventRecord map[string]string

// CheckoutRecord is published after a checkout is created or changes status.
func CheckoutRecord(c *Checkout) EventRecord {
	return EventRecord{
		"checkout_id": strconv.FormatInt(c.ID, 10),
		"user_id":     strconv.FormatInt(c.UserID, 10),
		"status":      string(c.Status),
		"total":       c.TotalAmount.String(),
	}
}

// ProductRecord is published when a published product is saved.
func ProductRecord(p *Product) EventRecord {
	return EventRecord{
		"product_id":  strconv.FormatInt(p.ID, 10),
		"slug":        p.Slug,
		"name":        p.Name,
		"sku":         p.SKU,
		"price":       p.Price.String(),
		"currency":    p.Currency,
		"category_id": strconv.FormatInt(p.CategoryID, 10),
	}
}

// NewsRecord is published when a published article is saved.
func NewsRecord(a *NewsArticle) EventRecord {
	var tags []string
	_ = json.Unmarshal(a.Tags, &tags)
	return EventRecord{
		"article_id":   strconv.FormatInt(a.ID, 10),
		"slug":         a.Slug,
		"title":        a.Title,
		"summary":      a.Summary,
		"published_at": isoTime(a.PublishedAt),
		"tags":         strings.Join(tags, ","),
	}
}

// PageRecord is published when a published page is saved.
func PageRecord(p *Page) EventRecord {
	return EventRecord{
		"page_id":      strconv.FormatInt(p.ID, 10),
		"slug":         p.Slug,
		"locale":       p.Locale,
		"published_at": isoTime(p.PublishedAt),
	}
}

func isoTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
