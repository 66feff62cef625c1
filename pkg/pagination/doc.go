// Package pagination downloads every page of a paginated JSON API.
//
// The API reports, with each page, how many pages remain after it. The
// coordinator fetches page 1 synchronously to learn the total, then spreads
// pages 2..N across a fixed-width worker pool. Workers only fetch; results are
// sent back over a channel and the coordinator alone flattens them into the
// Dataset, so no locking is needed around the accumulator.
//
// Example usage:
//
//	httpClient, _ := client.New(client.DefaultConfig("my-app/1.0"))
//	fetcher := pagination.NewHTTPFetcher(httpClient, pagination.DefaultAPIParams())
//	coordinator := pagination.NewCoordinator(fetcher, pagination.DefaultConfig())
//	dataset, err := coordinator.DownloadAll(ctx, "https://api.example.com/v1/suppliers")
//
// The coordinator:
//   - Fetches page 1 to determine total pages (remaining + 1)
//   - Stops with an empty Dataset when page 1 has no records
//   - Spawns a bounded worker pool (default 5 workers)
//   - Flattens each batch as it completes and reports progress
//   - Skips failed pages (logged, counted) instead of aborting
//
// Completion order, and therefore record order in the Dataset, is unspecified.
package pagination
