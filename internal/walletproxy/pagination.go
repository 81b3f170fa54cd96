package walletproxy

import (
	"context"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
)

// PageFetcher is the page-level source FetchAll drives. *Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, account string, limit int, cursor *uint64) (Page, error)
}

// FetchAll pages through the full history of account, handing every page to
// onPage. The cursor of the next request is the ID of the last transaction of
// the previous page. It stops on a short page, or on an empty one even if the
// source claims more data. It returns the number of requests made; failures
// come back as *domain.FetchError.
func FetchAll(ctx context.Context, f PageFetcher, account string, limit int, onPage func([]domain.Transaction)) (int, error) {
	log := logger.FromContext(ctx).With().Str("account", account).Logger()

	var (
		cursor *uint64
		calls  int
	)
	for {
		page, err := f.FetchPage(ctx, account, limit, cursor)
		calls++
		if err != nil {
			return calls, &domain.FetchError{Account: account, Err: err}
		}

		if len(page.Transactions) > 0 {
			onPage(page.Transactions)
		}

		if !page.HasMore {
			break
		}
		if len(page.Transactions) == 0 {
			log.Warn().Int("calls", calls).Msg("Full page reported with no transactions, stopping pagination")
			break
		}

		next := page.Transactions[len(page.Transactions)-1].ID
		cursor = &next
	}

	log.Debug().Int("calls", calls).Msg("Pagination finished")
	return calls, nil
}
