package engine

import (
	"context"
	"errors"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

// DefaultPageSize is the page size Scan uses when none is given.
const DefaultPageSize = 500

// Scan visits every hit of req, pageSize hits per request, resuming each
// page with search_after on the previous page's last sort values. req.Sort
// must name a key that is unique within the partition; From is ignored.
func Scan(ctx context.Context, eng Engine, index string, req query.Request, pageSize int, visit func(Hit)) error {
	if len(req.Sort) == 0 {
		return errors.New("scan needs a sort key")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	req.From = 0
	req.Size = pageSize
	req.SearchAfter = nil
	for {
		resp, err := eng.Search(ctx, index, req)
		if err != nil {
			return err
		}
		for _, h := range resp.Hits {
			visit(h)
		}
		if len(resp.Hits) < pageSize {
			return nil
		}
		last := resp.Hits[len(resp.Hits)-1].Sort
		if len(last) == 0 {
			return errors.New("engine returned a hit without sort values")
		}
		req.SearchAfter = last
	}
}
