// Package dataset loads the harmful-behavior prompt set and the jailbreak
// template set consumed by the evaluation run.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"
)

// Load reads the goal strings from a CSV source. The source is fetched over
// HTTP when it carries an http(s) scheme, otherwise it is treated as a local
// path. The CSV must have a header row with a "text" or "goal" column.
func Load(ctx context.Context, source string, httpClient *http.Client) ([]string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("dataset: source must not be empty")
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return loadHTTP(ctx, source, httpClient)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", source, err)
	}
	defer func() { _ = f.Close() }()
	return readCSV(f)
}

func loadHTTP(ctx context.Context, url string, httpClient *http.Client) ([]string, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dataset: create request: %w", err)
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset: fetch %s: %w", url, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("dataset: fetch %s: unexpected status %d", url, res.StatusCode)
	}
	return readCSV(io.LimitReader(res.Body, 16<<20))
}

// readCSV extracts the goal column. "text" is preferred over "goal" so a
// pre-renamed export keeps working.
func readCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	col := -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text":
			col = i
		case "goal":
			if col == -1 {
				col = i
			}
		}
	}
	if col == -1 {
		return nil, errors.New("dataset: no text or goal column in header")
	}

	var prompts []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: read row: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if text := strings.TrimSpace(rec[col]); text != "" {
			prompts = append(prompts, text)
		}
	}
	if len(prompts) == 0 {
		return nil, errors.New("dataset: no prompts in source")
	}
	return prompts, nil
}

// Split partitions prompts into train and test subsets after a seeded
// shuffle. The same (seed, fraction, input order) always yields the same
// partition. The test subset is never empty when a positive fraction is
// requested.
func Split(prompts []string, testFraction float64, seed int64) (train, test []string, err error) {
	if len(prompts) == 0 {
		return nil, nil, errors.New("dataset: prompts must not be empty")
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("dataset: test fraction %v out of range (0,1)", testFraction)
	}

	shuffled := make([]string, len(prompts))
	copy(shuffled, prompts)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTest := int(float64(len(shuffled)) * testFraction)
	if nTest == 0 {
		nTest = 1
	}
	return shuffled[nTest:], shuffled[:nTest], nil
}
