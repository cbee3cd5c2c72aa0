package api

import (
	"fmt"
	"net/http"
	"strconv"

	"remindr/internal/models"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type page struct {
	Number  int // zero-based
	PerPage int
}

// pageFromQuery reads ?page= and ?per_page=. It returns nil when the caller
// did not ask for paging.
func pageFromQuery(r *http.Request) (*page, error) {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("per_page") == "" {
		return nil, nil
	}

	p := &page{PerPage: defaultPerPage}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: page must be a positive integer", models.ErrValidation)
		}
		p.Number = n - 1
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPerPage {
			return nil, fmt.Errorf("%w: per_page must be between 1 and %d", models.ErrValidation, maxPerPage)
		}
		p.PerPage = n
	}
	return p, nil
}

// slice returns the items of the page plus the total page count.
func (p *page) slice(items []models.Reminder) ([]models.Reminder, int) {
	pages := (len(items) + p.PerPage - 1) / p.PerPage
	start := p.Number * p.PerPage
	if start >= len(items) {
		return []models.Reminder{}, pages
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], pages
}

func writePageHeaders(w http.ResponseWriter, total, pages int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	w.Header().Set("X-Page-Count", strconv.Itoa(pages))
}
