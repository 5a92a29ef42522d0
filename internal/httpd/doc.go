// Package httpd is a minimal HTTP/1.1 server that hands every accepted
// connection to a worker pool as one job.
//
// It understands exactly two requests, matched on the raw request line:
//
//	GET / HTTP/1.1       -> 200, index.html
//	GET /sleep HTTP/1.1  -> 200, index.html after Config.SleepDelay
//
// Anything else is answered with 404.html. Pages come from Config.StaticDir
// when set, otherwise from the copies embedded in the binary.
//
//	pool, _ := worker.NewPool(4)
//	defer pool.Shutdown()
//
//	srv := httpd.New(httpd.DefaultConfig(), pool)
//	err := srv.ListenAndServe(ctx) // returns when ctx is cancelled
package httpd
