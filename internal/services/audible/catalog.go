package audible

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"tapedeck/internal/logging"
)

const (
	libraryResponseGroups = "media,product_attrs,product_desc,relationships,series,customer_rights"
	contentURLBase        = "https://cde-ta-g7g.amazon.com/FionaCDEServiceEngine/FSDownloadContent"
	defaultCacheTTL       = 15 * time.Minute
)

// SignedDoer is the subset of Client the catalog depends on.
type SignedDoer interface {
	HTTPDoer
	TLD() string
}

// CatalogOption customises Catalog construction.
type CatalogOption func(*Catalog)

// WithQuality sets the codec quality policy applied to parsed items.
func WithQuality(q Quality) CatalogOption {
	return func(c *Catalog) {
		c.quality = q
	}
}

// WithCacheTTL sets how long parsed assets are served from memory. Zero
// disables caching.
func WithCacheTTL(ttl time.Duration) CatalogOption {
	return func(c *Catalog) {
		c.cacheTTL = ttl
	}
}

// WithCatalogLogger attaches a logger.
func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// Catalog lists and describes library items through a signed client.
type Catalog struct {
	client   SignedDoer
	quality  Quality
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
	cache    *ttlcache.Cache[string, Asset]
}

// NewCatalog builds a catalog reader.
func NewCatalog(client SignedDoer, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		client:   client,
		quality:  QualityBest,
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "audible-catalog")
	if c.cacheTTL > 0 {
		c.cache = ttlcache.New(
			ttlcache.WithTTL[string, Asset](c.cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, Asset](),
		)
	}
	return c
}

// ListPage returns one page of the library. Records that fail to parse are
// dropped with a warning.
func (c *Catalog) ListPage(ctx context.Context, page, limit int) ([]Asset, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set("response_groups", libraryResponseGroups)
	query.Set("page", strconv.Itoa(page))
	query.Set("num_results", strconv.Itoa(limit))

	var payload struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := c.getJSON(ctx, "/1.0/library", query, "list library", &payload); err != nil {
		return nil, err
	}

	now := c.now()
	assets := make([]Asset, 0, len(payload.Items))
	for _, raw := range payload.Items {
		var item LibraryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			c.dropItem("", fmt.Errorf("%w: %w", ErrParse, err))
			continue
		}
		asset, err := ParseItem(item, c.quality, now, c.logger)
		if err != nil {
			c.dropItem(item.ASIN, err)
			continue
		}
		c.remember(asset)
		assets = append(assets, asset)
	}
	c.logger.Debug("library page fetched",
		logging.Int("page", page),
		logging.Int("items", len(payload.Items)),
		logging.Int("parsed", len(assets)),
	)
	return assets, nil
}

// GetItem returns a single item by public id or ASIN, served from the cache
// when ListPage or GetItem saw it recently.
func (c *Catalog) GetItem(ctx context.Context, id string) (Asset, error) {
	asin := ASINFromID(id)
	if asin == "" {
		return Asset{}, fmt.Errorf("%w: empty asset id", ErrParse)
	}
	if c.cache != nil {
		if cached := c.cache.Get(asin); cached != nil {
			return cached.Value(), nil
		}
	}

	query := url.Values{}
	query.Set("response_groups", libraryResponseGroups)
	var payload struct {
		Item *LibraryItem `json:"item"`
	}
	if err := c.getJSON(ctx, "/1.0/library/"+url.PathEscape(asin), query, "get item", &payload); err != nil {
		return Asset{}, err
	}
	if payload.Item == nil {
		return Asset{}, fmt.Errorf("%w: item %s missing from response", ErrMalformedResponse, asin)
	}
	asset, err := ParseItem(*payload.Item, c.quality, c.now(), c.logger)
	if err != nil {
		return Asset{}, err
	}
	c.remember(asset)
	return asset, nil
}

// ContentURL resolves the CDN location of an asset's encrypted audio. The
// location comes from the redirect's Location header, or from the final
// request URL when the transport followed the redirect.
func (c *Catalog) ContentURL(ctx context.Context, asset Asset) (string, error) {
	if !asset.Downloadable {
		return "", fmt.Errorf("%w: %s", ErrNotDownloadable, asset.ID)
	}
	if asset.Source.FileType != FileTypeAAX {
		return "", fmt.Errorf("%w: %s is %s", ErrUnsupportedFormat, asset.ID, asset.Source.FileType)
	}

	query := url.Values{}
	query.Set("type", "AUDI")
	query.Set("currentTransportMethod", "WIFI")
	query.Set("key", asset.ASIN)
	query.Set("codec", asset.Source.CodecName)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, contentURLBase+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build content request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("content request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", responseError(req, resp, "content url")
	}

	location := resp.Header.Get("Location")
	if location == "" && resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.Host != req.URL.Host {
		location = resp.Request.URL.String()
	}
	if location == "" {
		return "", fmt.Errorf("%w: no content location for %s", ErrMalformedResponse, asset.ID)
	}
	return strings.Replace(location, "cds.audible.com", "cds.audible."+c.client.TLD(), 1), nil
}

func (c *Catalog) getJSON(ctx context.Context, path string, query url.Values, operation string, out any) error {
	endpoint := Locale{Domain: c.client.TLD()}.APIURL() + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Charset", "utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(req, resp, operation)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrMalformedResponse, operation, err)
	}
	return nil
}

func (c *Catalog) remember(asset Asset) {
	if c.cache != nil {
		c.cache.Set(asset.ASIN, asset, ttlcache.DefaultTTL)
	}
}

func (c *Catalog) dropItem(asin string, err error) {
	logging.WarnWithContext(c.logger, "library item dropped", "catalog_parse",
		logging.String("asin", asin),
		logging.Error(err),
		logging.String(logging.FieldImpact, "item is hidden from the library listing"),
	)
}
