package audible

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Author is one entry of an item's authors list.
type Author struct {
	ASIN string `json:"asin"`
	Name string `json:"name"`
}

// Relationship links multi-part books and podcasts to their components.
type Relationship struct {
	ASIN                  string  `json:"asin"`
	ContentDeliveryType   *string `json:"content_delivery_type"`
	RelationshipToProduct string  `json:"relationship_to_product"`
	RelationshipType      string  `json:"relationship_type"`
	SKU                   *string `json:"sku"`
	SKULite               *string `json:"sku_lite"`
	Sort                  *string `json:"sort"`
	Title                 *string `json:"title"`
	URL                   *string `json:"url"`
}

// CustomerRights carries the rights flags of a library item.
type CustomerRights struct {
	IsConsumableOffline *bool `json:"is_consumable_offline"`
}

// LibraryItem is a raw record from the library endpoint. Nullable fields are
// pointers so that absence can be told apart from empty values.
type LibraryItem struct {
	ASIN                string            `json:"asin"`
	Title               *string           `json:"title"`
	Subtitle            *string           `json:"subtitle"`
	ContentDeliveryType string            `json:"content_delivery_type"`
	Authors             []Author          `json:"authors"`
	Narrators           []Author          `json:"narrators"`
	PublicationDatetime *string           `json:"publication_datetime"`
	RuntimeLengthMin    int               `json:"runtime_length_min"`
	CustomerRights      *CustomerRights   `json:"customer_rights"`
	IsAYCE              bool              `json:"is_ayce"`
	AvailableCodecs     []Codec           `json:"available_codecs"`
	ProductImages       map[string]string `json:"product_images"`
	Relationships       []Relationship    `json:"relationships"`
}

// Asset is the parsed, immutable view of a library item.
type Asset struct {
	ID             string
	ASIN           string
	Title          string
	ImageURL       string
	Authors        []string
	Narrators      []string
	RuntimeMinutes int
	PublishedAt    time.Time
	Downloadable   bool
	Source         DownloadSourceMetadata
}

// AssetID returns the public id for an ASIN.
func AssetID(asin string) string {
	return SourceID + ":" + asin
}

// ASINFromID accepts either a public id or a bare ASIN.
func ASINFromID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), SourceID+":")
}

// ParseItem validates a raw library record and derives the asset view.
// Missing title, images, or authors fail with ErrParse.
func ParseItem(item LibraryItem, quality Quality, now time.Time, logger *slog.Logger) (Asset, error) {
	if strings.TrimSpace(item.ASIN) == "" {
		return Asset{}, fmt.Errorf("%w: missing asin", ErrParse)
	}
	if item.Title == nil || strings.TrimSpace(*item.Title) == "" {
		return Asset{}, fmt.Errorf("%w: %s: missing title", ErrParse, item.ASIN)
	}
	imageURL, ok := largestImage(item.ProductImages)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s: no product images", ErrParse, item.ASIN)
	}
	authors := authorNames(item.Authors)
	if len(authors) == 0 {
		return Asset{}, fmt.Errorf("%w: %s: missing authors", ErrParse, item.ASIN)
	}

	published, hasDate := publicationTime(item.PublicationDatetime)
	offline := item.CustomerRights != nil && item.CustomerRights.IsConsumableOffline != nil && *item.CustomerRights.IsConsumableOffline

	return Asset{
		ID:             AssetID(item.ASIN),
		ASIN:           item.ASIN,
		Title:          strings.TrimSpace(*item.Title),
		ImageURL:       imageURL,
		Authors:        authors,
		Narrators:      authorNames(item.Narrators),
		RuntimeMinutes: item.RuntimeLengthMin,
		PublishedAt:    published,
		Downloadable:   hasDate && !published.After(now) && offline,
		Source:         SelectCodec(item, quality, logger),
	}, nil
}

func largestImage(images map[string]string) (string, bool) {
	best := -1
	var url string
	for key, value := range images {
		size, err := strconv.Atoi(key)
		if err != nil || value == "" {
			continue
		}
		if size > best {
			best, url = size, value
		}
	}
	return url, best >= 0
}

func authorNames(authors []Author) []string {
	names := make([]string, 0, len(authors))
	for _, author := range authors {
		if name := strings.TrimSpace(author.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func publicationTime(value *string) (time.Time, bool) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
