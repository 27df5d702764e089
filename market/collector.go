package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const birdeyeBaseURL = "https://public-api.birdeye.so"

// Candle one OHLCV bar
type Candle struct {
	UnixTime int64   `json:"unixTime"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

type ohlcvResponse struct {
	Data struct {
		Items []Candle `json:"items"`
	} `json:"data"`
	Success bool `json:"success"`
}

type walletTokenListResponse struct {
	Data struct {
		Items []struct {
			Address  string  `json:"address"`
			Symbol   string  `json:"symbol"`
			UIAmount float64 `json:"uiAmount"`
			ValueUSD float64 `json:"valueUsd"`
		} `json:"items"`
	} `json:"data"`
	Success bool `json:"success"`
}

// Collector fetches OHLCV history and wallet holdings from Birdeye and caches
// per-token candle CSVs on disk.
type Collector struct {
	client    *resty.Client
	daysBack  int
	timeframe string
	cacheDir  string
}

// NewCollector creates a Birdeye-backed collector. Candle CSVs are cached
// under cacheDir as <token>_latest.csv.
func NewCollector(apiKey string, daysBack int, timeframe, cacheDir string) *Collector {
	client := resty.New().
		SetBaseURL(birdeyeBaseURL).
		SetHeader("X-API-KEY", apiKey).
		SetHeader("x-chain", "solana").
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	return &Collector{
		client:    client,
		daysBack:  daysBack,
		timeframe: timeframe,
		cacheDir:  cacheDir,
	}
}

// CollectToken fetches OHLCV history for a single token and computes the
// indicator summary. Returns nil data (not an error) when the token simply has
// no candles.
func (c *Collector) CollectToken(ctx context.Context, token string) (*Data, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -c.daysBack)

	var out ohlcvResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"address":   token,
			"type":      c.timeframe,
			"time_from": strconv.FormatInt(from.Unix(), 10),
			"time_to":   strconv.FormatInt(now.Unix(), 10),
		}).
		SetResult(&out).
		Get("/defi/ohlcv")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", token, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("birdeye returned status %d for %s", resp.StatusCode(), token)
	}
	if len(out.Data.Items) == 0 {
		return nil, nil
	}

	data := NewData(token, out.Data.Items)

	if err := c.cacheCandles(token, out.Data.Items); err != nil {
		// Cache failures are not worth failing the collection over.
		return data, nil
	}
	return data, nil
}

// CollectAll fetches data for every token, skipping those with no candles or
// failed fetches. logf receives per-token progress messages.
func (c *Collector) CollectAll(ctx context.Context, tokens []string, logf func(string)) map[string]*Data {
	if logf == nil {
		logf = func(string) {}
	}
	marketData := make(map[string]*Data)
	for _, token := range tokens {
		logf(fmt.Sprintf("fetching data for %s", token))
		data, err := c.CollectToken(ctx, token)
		if err != nil {
			logf(fmt.Sprintf("Couldn't fetch data for %s: %v", token, err))
			continue
		}
		if data == nil {
			logf(fmt.Sprintf("Couldn't fetch data for %s", token))
			continue
		}
		logf(fmt.Sprintf("processed %d candles for analysis", len(data.Candles)))
		marketData[token] = data
	}
	return marketData
}

// WalletHoldings returns the token mints currently held by the wallet.
func (c *Collector) WalletHoldings(ctx context.Context, wallet string) ([]string, error) {
	var out walletTokenListResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("wallet", wallet).
		SetResult(&out).
		Get("/v1/wallet/token_list")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet holdings: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("birdeye returned status %d for wallet holdings", resp.StatusCode())
	}

	tokens := make([]string, 0, len(out.Data.Items))
	for _, item := range out.Data.Items {
		if item.Address == "" {
			continue
		}
		tokens = append(tokens, item.Address)
	}
	return tokens, nil
}

// cacheCandles writes the raw candles to <cacheDir>/<token>_latest.csv, the
// per-token scratch files the cycle cleanup step removes.
func (c *Collector) cacheCandles(token string, candles []Candle) error {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(c.cacheDir, token+"_latest.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, cd := range candles {
		record := []string{
			strconv.FormatInt(cd.UnixTime, 10),
			strconv.FormatFloat(cd.Open, 'f', -1, 64),
			strconv.FormatFloat(cd.High, 'f', -1, 64),
			strconv.FormatFloat(cd.Low, 'f', -1, 64),
			strconv.FormatFloat(cd.Close, 'f', -1, 64),
			strconv.FormatFloat(cd.Volume, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}
