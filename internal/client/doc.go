// Package client is a load generator for the webpool HTTP server.
//
// The Client issues raw HTTP/1.1 GET requests from its own worker pool and
// records latency and success in a metrics.Metrics. A request succeeds when
// the response status line is "HTTP/1.1 200 OK".
//
// # Basic Usage
//
//	config := client.DefaultConfig()
//	config.Addr = "127.0.0.1:7878"
//	cl := client.New(config)
//
//	// Run a fixed number of requests
//	snap, err := cl.RunRequests(ctx, 1000)
//
//	// Or run for a duration
//	snap, err := cl.RunFor(ctx, 10*time.Second)
//
// # Configuration
//
//   - NumWorkers: pool size (0 = CPU count)
//   - InFlightFactor: queued requests per worker before the generator waits
//   - Path: request path, "/" or "/sleep"
//   - Timeout: per request dial/read/write timeout
package client
