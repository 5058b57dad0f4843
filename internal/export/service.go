package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"hearth/api/internal/store"
)

// Service renders shopping list exports.
type Service struct {
	chromePath string
	now        func() time.Time
}

// NewService creates an export service. chromePath may be empty to search PATH.
func NewService(chromePath string) *Service {
	return &Service{chromePath: chromePath, now: time.Now}
}

// Available reports whether PDF export can run on this host.
func (s *Service) Available() bool {
	_, err := findBrowser(s.chromePath)
	return err == nil
}

// BuildList groups a thread's live messages into open and checked items
// as seen by viewerID. Deleted, archived and viewer-hidden messages are left out.
func BuildList(thread store.Thread, messages []store.Message, viewerID string, names map[string]string) List {
	list := List{
		Title:   thread.Title,
		Purpose: thread.Purpose,
		Open:    []Item{},
		Checked: []Item{},
	}
	for _, m := range messages {
		if m.DeletedAt != nil || m.ArchivedAt != nil || m.IsHiddenFor(viewerID) {
			continue
		}
		item := Item{
			Content: m.Content,
			Pinned:  m.PinnedAt != nil,
		}
		if m.ItemQuantity.Valid {
			item.Quantity = m.ItemQuantity.Decimal.String()
		}
		if m.ItemURL != nil {
			item.URL = *m.ItemURL
		}
		if m.CheckedAt != nil {
			item.CheckedAt = m.CheckedAt
			if m.CheckedBy != nil {
				item.CheckedBy = displayName(names, *m.CheckedBy)
			}
			list.Checked = append(list.Checked, item)
			continue
		}
		list.Open = append(list.Open, item)
	}
	// pinned items float to the top, otherwise keep thread order
	sort.SliceStable(list.Open, func(i, j int) bool {
		return list.Open[i].Pinned && !list.Open[j].Pinned
	})
	return list
}

func displayName(names map[string]string, userID string) string {
	if name := strings.TrimSpace(names[userID]); name != "" {
		return name
	}
	return "someone"
}

// Export renders list in the requested format.
func (s *Service) Export(ctx context.Context, list List, format Format) (*Result, error) {
	if list.GeneratedAt.IsZero() {
		list.GeneratedAt = s.now().UTC()
	}
	html, err := RenderHTML(list)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(list.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		browser, err := findBrowser(s.chromePath)
		if err != nil {
			return nil, err
		}
		return exportPDF(ctx, browser, html, list.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
