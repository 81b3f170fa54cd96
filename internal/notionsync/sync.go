package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/jomei/notionapi"
)

// queryPageSize is the Notion API maximum page size.
const queryPageSize = 100

// SyncStats reports what a sync did.
type SyncStats struct {
	Total    int
	Created  int
	Existing int
	Failed   int
}

// SyncExportRows creates a Notion page for every row whose key is not yet in
// the database. Existing pages are never modified, so repeated syncs of the
// same rows are no-ops. A failed page creation is logged and counted.
func SyncExportRows(ctx context.Context, notionClient NotionService, databaseID string, rows []domain.ExportRow, runID string, dryRun bool) (SyncStats, error) {
	log := logger.FromContext(ctx).With().Str("run_id", runID).Bool("dry_run", dryRun).Logger()

	stats := SyncStats{Total: len(rows)}

	log.Info().Int("row_count", len(rows)).Msg("Querying existing export rows from Notion")
	pages, err := queryAllNotionPages(ctx, notionClient, databaseID)
	if err != nil {
		return stats, fmt.Errorf("SyncExportRows: %w", err)
	}

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if key := extractRowKey(page); key != "" {
			existing[key] = true
		}
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	for _, row := range rows {
		key := RowKey(row)
		if existing[key] {
			stats.Existing++
			continue
		}

		if dryRun {
			log.Info().Str("key", key).Msg("[DRY RUN] Would create Notion page")
			existing[key] = true
			stats.Created++
			continue
		}

		page, err := notionClient.CreatePage(ctx, databaseID, ExportRowToNotionProperties(row, runID))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		existing[key] = true
		stats.Created++
		log.Debug().Str("key", key).Str("page_id", string(page.ID)).Msg("Created Notion page")
	}

	log.Info().
		Int("created", stats.Created).
		Int("existing", stats.Existing).
		Int("failed", stats.Failed).
		Int("total", stats.Total).
		Msg("Notion sync finished")

	return stats, nil
}

// queryAllNotionPages follows the database query cursor until every page is read.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: queryPageSize,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
