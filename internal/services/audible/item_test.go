package audible

import (
	"errors"
	"testing"
	"time"

	"tapedeck/internal/logging"
)

func ptr[T any](v T) *T { return &v }

func sampleItem() LibraryItem {
	return LibraryItem{
		ASIN:                "B08G9PRS1K",
		Title:               ptr("Project Hail Mary"),
		Authors:             []Author{{Name: "Andy Weir"}},
		Narrators:           []Author{{Name: "Ray Porter"}},
		PublicationDatetime: ptr("2021-05-04T05:00:00Z"),
		RuntimeLengthMin:    970,
		CustomerRights:      &CustomerRights{IsConsumableOffline: ptr(true)},
		AvailableCodecs:     codecs("aax_22_32", "aax_44_128"),
		ProductImages:       map[string]string{"500": "https://m.media/500.jpg", "1215": "https://m.media/1215.jpg"},
	}
}

var parseNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestParseItemDerivesAsset(t *testing.T) {
	asset, err := ParseItem(sampleItem(), QualityBest, parseNow, logging.NewNop())
	if err != nil {
		t.Fatalf("ParseItem: %v", err)
	}
	if asset.ID != "audible:B08G9PRS1K" {
		t.Fatalf("id = %q", asset.ID)
	}
	if asset.ImageURL != "https://m.media/1215.jpg" {
		t.Fatalf("image = %q", asset.ImageURL)
	}
	if !asset.Downloadable {
		t.Fatal("released offline item should be downloadable")
	}
	if asset.Source.CodecName != "aax_44_128" {
		t.Fatalf("codec = %q", asset.Source.CodecName)
	}
	if len(asset.Narrators) != 1 || asset.Narrators[0] != "Ray Porter" {
		t.Fatalf("narrators = %v", asset.Narrators)
	}
}

func TestParseItemDownloadability(t *testing.T) {
	tests := map[string]func(*LibraryItem){
		"future release":  func(i *LibraryItem) { i.PublicationDatetime = ptr("2030-01-01T00:00:00Z") },
		"no release date": func(i *LibraryItem) { i.PublicationDatetime = nil },
		"no offline flag": func(i *LibraryItem) { i.CustomerRights = nil },
		"offline false":   func(i *LibraryItem) { i.CustomerRights = &CustomerRights{IsConsumableOffline: ptr(false)} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			item := sampleItem()
			mutate(&item)
			asset, err := ParseItem(item, QualityBest, parseNow, logging.NewNop())
			if err != nil {
				t.Fatalf("ParseItem: %v", err)
			}
			if asset.Downloadable {
				t.Fatal("expected item to be non-downloadable")
			}
		})
	}
}

func TestParseItemRequiresFields(t *testing.T) {
	tests := map[string]func(*LibraryItem){
		"title":   func(i *LibraryItem) { i.Title = nil },
		"images":  func(i *LibraryItem) { i.ProductImages = map[string]string{} },
		"authors": func(i *LibraryItem) { i.Authors = []Author{{Name: " "}} },
		"asin":    func(i *LibraryItem) { i.ASIN = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			item := sampleItem()
			mutate(&item)
			if _, err := ParseItem(item, QualityBest, parseNow, logging.NewNop()); !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
		})
	}
}

func TestASINFromID(t *testing.T) {
	if got := ASINFromID("audible:B0X"); got != "B0X" {
		t.Fatalf("got %q", got)
	}
	if got := ASINFromID(" B0X "); got != "B0X" {
		t.Fatalf("got %q", got)
	}
}
