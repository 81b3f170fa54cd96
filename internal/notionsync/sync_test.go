package notionsync

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/jomei/notionapi"
)

// MockNotionService serves canned query pages and records created pages.
type MockNotionService struct {
	pages          [][]notionapi.Page
	CreatePageFunc func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	queries []*notionapi.DatabaseQueryRequest
	created []notionapi.Properties
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		if _, err := m.CreatePageFunc(ctx, databaseID, properties); err != nil {
			return nil, err
		}
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: "new-page"}, nil
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	i := len(m.queries)
	m.queries = append(m.queries, filter)
	if i >= len(m.pages) {
		return &notionapi.DatabaseQueryResponse{}, nil
	}
	resp := &notionapi.DatabaseQueryResponse{Results: m.pages[i]}
	if i < len(m.pages)-1 {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor("cursor-" + string(rune('a'+i)))
	}
	return resp, nil
}

func existingPage(key string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID("page-" + key),
		Properties: notionapi.Properties{
			PropKey: &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: key}}},
		},
	}
}

func testRows() []domain.ExportRow {
	return []domain.ExportRow{
		{Date: "2024-03-01 12:34 UTC", Amount: domain.MicroCCDToCCD(-4000), Currency: "CCD", TxHash: "h12"},
		{Date: "2024-03-01 12:34 UTC", Amount: domain.MicroCCDToCCD(-1000), Currency: "CCD", Label: domain.LabelFee, TxHash: "h12"},
		{Date: "2024-03-02 00:00 UTC", Amount: domain.MicroCCDToCCD(2000000), Currency: "CCD", Label: domain.LabelMining},
	}
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
}

func TestSyncExportRows_CreatesOnlyMissing(t *testing.T) {
	notion := &MockNotionService{pages: [][]notionapi.Page{
		{existingPage("unrelated")},
		{existingPage("h12:principal")},
	}}

	stats, err := SyncExportRows(quietContext(), notion, "db", testRows(), "run-1", false)
	if err != nil {
		t.Fatalf("SyncExportRows() error: %v", err)
	}

	if len(notion.queries) != 2 {
		t.Fatalf("expected 2 paginated queries, got %d", len(notion.queries))
	}
	if notion.queries[1].StartCursor != "cursor-a" {
		t.Errorf("second query cursor = %q, want cursor-a", notion.queries[1].StartCursor)
	}
	if stats.Created != 2 || stats.Existing != 1 || stats.Failed != 0 || stats.Total != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(notion.created) != 2 {
		t.Fatalf("expected 2 created pages, got %d", len(notion.created))
	}
}

func TestSyncExportRows_DryRunCreatesNothing(t *testing.T) {
	notion := &MockNotionService{}

	stats, err := SyncExportRows(quietContext(), notion, "db", testRows(), "", true)
	if err != nil {
		t.Fatalf("SyncExportRows() error: %v", err)
	}
	if stats.Created != 3 {
		t.Errorf("dry run should report 3 creations, got %d", stats.Created)
	}
	if len(notion.created) != 0 {
		t.Errorf("dry run created %d pages", len(notion.created))
	}
}

func TestSyncExportRows_DuplicateInputRowsCreatedOnce(t *testing.T) {
	notion := &MockNotionService{}
	rows := append(testRows(), testRows()...)

	stats, err := SyncExportRows(quietContext(), notion, "db", rows, "", false)
	if err != nil {
		t.Fatalf("SyncExportRows() error: %v", err)
	}
	if stats.Created != 3 || stats.Existing != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSyncExportRows_CreateFailureIsCounted(t *testing.T) {
	notion := &MockNotionService{
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
			if _, ok := properties[PropLabel]; ok {
				return nil, errors.New("rate limited")
			}
			return nil, nil
		},
	}

	stats, err := SyncExportRows(quietContext(), notion, "db", testRows(), "", false)
	if err != nil {
		t.Fatalf("SyncExportRows() error: %v", err)
	}
	if stats.Created != 1 || stats.Failed != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSyncExportRows_QueryError(t *testing.T) {
	notion := &failingQueryService{}
	if _, err := SyncExportRows(quietContext(), notion, "db", testRows(), "", false); err == nil {
		t.Error("expected error when the database cannot be queried")
	}
}

type failingQueryService struct{ MockNotionService }

func (f *failingQueryService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return nil, errors.New("unauthorized")
}
