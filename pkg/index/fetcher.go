package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/pkg/ledger"
	"github.com/uhyunpark/objmarket/pkg/util"
)

const DefaultPageSize = 50

var ErrPagination = errors.New("pagination did not terminate")

// FetchError reports a failed fetch pass. It matches ledger.ErrRemoteUnavailable.
type FetchError struct {
	Owner string
	Type  string
	Page  int // 1-based page that failed
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s owned by %s: page %d: %v", e.Type, e.Owner, e.Page, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ledger.ErrRemoteUnavailable, e.Err}
}

// Fetcher walks every page of an owned-objects query.
type Fetcher struct {
	Client   ledger.Client
	PageSize int
	// MaxPages aborts a pass that does not terminate. 0 means no cap.
	MaxPages int
	Log      *zap.SugaredLogger
}

// FetchAll returns every page for (owner, declaredType), or an error and no
// pages if any request fails. Requests are strictly sequential because each
// depends on the previous continuation token.
func (f *Fetcher) FetchAll(ctx context.Context, owner, declaredType string) ([]ledger.Page, error) {
	log := util.Sugar(f.Log)
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	var pages []ledger.Page
	cursor := ""
	for n := 1; ; n++ {
		if f.MaxPages > 0 && n > f.MaxPages {
			return nil, &FetchError{Owner: owner, Type: declaredType, Page: n,
				Err: fmt.Errorf("%w: more than %d pages", ErrPagination, f.MaxPages)}
		}
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{Owner: owner, Type: declaredType, Page: n, Err: err}
		}

		page, err := f.Client.QueryOwnedObjects(ctx, owner, declaredType, cursor, size)
		if err != nil {
			log.Warnw("fetch_page_failed", "owner", owner, "type", declaredType, "page", n, "err", err)
			return nil, &FetchError{Owner: owner, Type: declaredType, Page: n, Err: err}
		}
		pages = append(pages, page)

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		if page.NextCursor == cursor {
			return nil, &FetchError{Owner: owner, Type: declaredType, Page: n,
				Err: fmt.Errorf("%w: cursor %q repeated", ErrPagination, cursor)}
		}
		cursor = page.NextCursor
	}

	log.Debugw("fetch_complete", "owner", owner, "type", declaredType, "pages", len(pages))
	return pages, nil
}

// FetchAll is a convenience wrapper for a one-off unbounded pass.
func FetchAll(ctx context.Context, client ledger.Client, owner, declaredType string, pageSize int) ([]ledger.Page, error) {
	f := Fetcher{Client: client, PageSize: pageSize}
	return f.FetchAll(ctx, owner, declaredType)
}
