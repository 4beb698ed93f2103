// Package notionsync mirrors billing-period aggregates into a Notion
// database, one page per (period, currency). Pages carry the period key in a
// rich-text property; reruns find and update existing pages instead of
// duplicating them.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/logger"
)

// Property names in the target Notion database.
const (
	propTitle    = "Name"
	propPeriod   = "Period"
	propCurrency = "Currency"
	propTotal    = "Total"
)

// NotionService is the slice of the Notion API the sync needs. Mocked in
// tests.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// SyncResult counts the outcome of one sync run.
type SyncResult struct {
	Created int
	Updated int
}

// SyncPeriodSums pushes the given aggregates into the Notion database.
// Matching pages (same period key and currency) are updated in place. With
// dryRun set, nothing is written and the result counts what would happen.
func SyncPeriodSums(ctx context.Context, notion NotionService, databaseID string, sums []domain.PeriodSum, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx)

	pages, err := queryAllPages(ctx, notion, databaseID)
	if err != nil {
		return nil, fmt.Errorf("SyncPeriodSums: %w", err)
	}

	// Existing pages indexed by "periodKey/currency".
	existing := make(map[string]notionapi.ObjectID)
	for _, page := range pages {
		key := pageKey(page)
		if key != "" {
			existing[key] = page.ID
		}
	}

	result := &SyncResult{}
	for _, sum := range sums {
		key := sum.PeriodKey + "/" + string(sum.Currency)
		props := pageProperties(sum)

		if pageID, ok := existing[key]; ok {
			if !dryRun {
				if _, err := notion.UpdatePage(ctx, string(pageID), props); err != nil {
					return result, fmt.Errorf("SyncPeriodSums: updating %s: %w", key, err)
				}
			}
			result.Updated++
			continue
		}

		if !dryRun {
			if _, err := notion.CreatePage(ctx, databaseID, props); err != nil {
				return result, fmt.Errorf("SyncPeriodSums: creating %s: %w", key, err)
			}
		}
		result.Created++
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Bool("dryRun", dryRun).
		Msg("notion sync finished")
	return result, nil
}

func queryAllPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	req := &notionapi.DatabaseQueryRequest{PageSize: 100}
	for {
		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore {
			return pages, nil
		}
		req.StartCursor = notionapi.Cursor(resp.NextCursor)
	}
}

// pageKey reconstructs the dedup key from a page's properties, or "" for
// pages the sync does not own.
func pageKey(page notionapi.Page) string {
	period := richTextValue(page.Properties[propPeriod])
	currency := selectValue(page.Properties[propCurrency])
	if period == "" || currency == "" {
		return ""
	}
	return period + "/" + currency
}

func richTextValue(prop notionapi.Property) string {
	rt, ok := prop.(*notionapi.RichTextProperty)
	if !ok || len(rt.RichText) == 0 {
		return ""
	}
	return rt.RichText[0].PlainText
}

func selectValue(prop notionapi.Property) string {
	sel, ok := prop.(*notionapi.SelectProperty)
	if !ok {
		return ""
	}
	return sel.Select.Name
}

func pageProperties(sum domain.PeriodSum) notionapi.Properties {
	total, _ := sum.TotalAmount.Float64()
	title := fmt.Sprintf("%s (%s)", sum.PeriodKey, sum.Currency)
	return notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
		},
		propPeriod: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: sum.PeriodKey}}},
		},
		propCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(sum.Currency)},
		},
		propTotal: notionapi.NumberProperty{Number: total},
	}
}
