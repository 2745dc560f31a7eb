// Package platformtest provides an in-memory platform adapter for tests.
package platformtest

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"seriesbell/internal/infra/platform"
)

// Fake is a scriptable platform.Platform. Its URLs look like
// https://<domain>/title/<id>. The zero value is not usable; call New.
type Fake struct {
	info platform.Info

	mu          sync.Mutex
	sources     map[string]*platform.SourceInfo
	latest      map[string]*platform.LatestItem
	errs        map[string]error
	sourceCalls int
	latestCalls int
}

// New returns a Fake registered under id, matching URLs on domain.
func New(id, domain string) *Fake {
	return &Fake{
		info: platform.Info{
			ID:              id,
			Name:            strings.ToUpper(id[:1]) + id[1:],
			APIHostname:     "api." + domain,
			APIDomain:       domain,
			APIURL:          "https://api." + domain,
			Tags:            "series",
			CopyrightNotice: "© " + domain,
			ItemNoun:        "Chapter",
			LogoURL:         "https://" + domain + "/logo.png",
		},
		sources: map[string]*platform.SourceInfo{},
		latest:  map[string]*platform.LatestItem{},
		errs:    map[string]error{},
	}
}

// SetSource seeds the series id with a name and its latest item.
func (f *Fake) SetSource(id, name, title string, published time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[id] = &platform.SourceInfo{
		ID:          id,
		ItemsID:     id,
		Name:        name,
		Description: name + " description",
		SourceURL:   f.URLFromSourceID(id),
		ImageURL:    "https://" + f.info.APIDomain + "/covers/" + id + ".jpg",
	}
	f.latest[id] = &platform.LatestItem{Title: title, Published: published}
	delete(f.errs, id)
}

// SetLatest replaces the latest item of id.
func (f *Fake) SetLatest(id, title string, published time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[id] = &platform.LatestItem{Title: title, Published: published}
	delete(f.errs, id)
}

// SetError makes FetchLatest fail for id with err.
func (f *Fake) SetError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

// Finish makes id report platform.KindSourceFinished.
func (f *Fake) Finish(id string) {
	f.SetError(id, &platform.Error{Kind: platform.KindSourceFinished, Platform: f.info.ID, SourceID: id})
}

// Calls returns how many FetchSource and FetchLatest calls were made.
func (f *Fake) Calls() (source, latest int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sourceCalls, f.latestCalls
}

func (f *Fake) Info() platform.Info { return f.info }

func (f *Fake) IDFromSourceURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &platform.URLParseError{URL: rawURL, Reason: err.Error()}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "title" || parts[1] == "" {
		return "", &platform.URLParseError{URL: rawURL, Reason: "missing /title/{id}"}
	}
	return parts[1], nil
}

func (f *Fake) URLFromSourceID(id string) string {
	return "https://" + f.info.APIDomain + "/title/" + id
}

func (f *Fake) FetchSource(_ context.Context, id string) (*platform.SourceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourceCalls++
	src, ok := f.sources[id]
	if !ok {
		return nil, &platform.Error{Kind: platform.KindSeriesNotFound, Platform: f.info.ID, SourceID: id}
	}
	cp := *src
	return &cp, nil
}

func (f *Fake) FetchLatest(_ context.Context, itemsID string) (*platform.LatestItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if err := f.errs[itemsID]; err != nil {
		return nil, err
	}
	item, ok := f.latest[itemsID]
	if !ok {
		return nil, &platform.Error{Kind: platform.KindEmptySeries, Platform: f.info.ID, SourceID: itemsID}
	}
	cp := *item
	return &cp, nil
}
