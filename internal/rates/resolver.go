package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/config"
	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
	"github.com/core-coin/salarium/pkg/logger"
)

const (
	// cryptoPlaces is the precision of converted crypto amounts
	cryptoPlaces = 6

	quoteCurrency = "USD"
	feedSource    = "coingecko"
)

// feedAssetIDs maps market-priced currencies to price feed asset ids.
var feedAssetIDs = map[models.CurrencyType]string{
	models.CurrencyXRP: "ripple",
}

// Resolver resolves USD exchange rates per payout currency.
type Resolver struct {
	logger  *logger.Logger
	config  *config.Config
	client  *http.Client
	rateLog models.RateLogStore
	cache   Cache
	locker  models.Locker

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewResolver creates a new Resolver. cache and locker may be nil.
func NewResolver(
	logger *logger.Logger,
	config *config.Config,
	rateLog models.RateLogStore,
	cache Cache,
	locker models.Locker,
) *Resolver {
	return &Resolver{
		logger:  logger,
		config:  config,
		client:  &http.Client{Timeout: config.RateTimeout},
		rateLog: rateLog,
		cache:   cache,
		locker:  locker,
	}
}

// Rate returns how many USD one unit of currency is worth. Any feed problem
// is reported as a rate_unavailable payment error.
func (r *Resolver) Rate(ctx context.Context, currency models.CurrencyType) (decimal.Decimal, error) {
	if currency == models.CurrencyRLUSD {
		return decimal.NewFromInt(1), nil
	}
	assetID, ok := feedAssetIDs[currency]
	if !ok {
		return decimal.Zero, apperr.Validation("currency_type", fmt.Sprintf("unsupported currency %q", currency))
	}

	if r.cache != nil {
		rate, hit, err := r.cache.Get(ctx, currency)
		if err != nil {
			r.logger.Warn("Rate cache read failed", "currency", currency, "error", err)
		} else if hit && rate.IsPositive() {
			return rate, nil
		}
	}

	rate, err := r.fetch(ctx, assetID)
	if err != nil {
		r.logger.Error("Exchange rate unavailable", "currency", currency, "error", err)
		return decimal.Zero, apperr.Payment(apperr.CodeRateUnavailable, "exchange rate unavailable", err)
	}

	r.record(ctx, currency, rate)
	return rate, nil
}

// ConvertFiatToCrypto converts a USD amount into currency units at the
// current rate and returns both.
func (r *Resolver) ConvertFiatToCrypto(ctx context.Context, amountUSD decimal.Decimal, currency models.CurrencyType) (decimal.Decimal, decimal.Decimal, error) {
	rate, err := r.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	crypto, err := Convert(amountUSD, rate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return crypto, rate, nil
}

// Convert divides amountUSD by rate, rounded to six places.
func Convert(amountUSD, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, apperr.Payment(apperr.CodeRateUnavailable, "exchange rate must be positive", nil)
	}
	return amountUSD.Div(rate).Round(cryptoPlaces), nil
}

func (r *Resolver) fetch(ctx context.Context, assetID string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.RateTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", strings.TrimRight(r.config.PriceFeedURL, "/"), assetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.config.PriceFeedAPIKey != "" {
		req.Header.Set(r.config.PriceFeedAPIKeyHeader, r.config.PriceFeedAPIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var prices map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&prices); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}
	price, ok := prices[assetID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price response has no usd price for %s", assetID)
	}
	rate, err := decimal.NewFromString(price.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed price %q: %w", price, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", rate)
	}
	return rate, nil
}

// record caches and logs a freshly fetched rate. Failures are logged only.
func (r *Resolver) record(ctx context.Context, currency models.CurrencyType, rate decimal.Decimal) {
	if r.cache != nil && r.config.RateCacheTTL > 0 {
		if err := r.cache.Set(ctx, currency, rate, r.config.RateCacheTTL); err != nil {
			r.logger.Warn("Rate cache write failed", "currency", currency, "error", err)
		}
	}
	if r.rateLog == nil {
		return
	}
	entry := &models.ExchangeRateLog{
		Source:        feedSource,
		BaseCurrency:  currency,
		QuoteCurrency: quoteCurrency,
		Rate:          rate,
		FetchedAt:     time.Now().UTC(),
	}
	if err := r.rateLog.AddExchangeRateLog(ctx, entry); err != nil {
		r.logger.Error("Failed to append exchange rate log", "currency", currency, "error", err)
	}
}
