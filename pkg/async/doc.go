// Package async runs background work off the caller's path.
//
// SafeGo starts one fire-and-forget task with panic recovery and a timeout.
// WorkerPool runs submitted tasks on a fixed number of workers; the registry uses
// it to realize and activate extensions in the background so a slow extension
// never blocks list updates.
//
//	pool := async.NewWorkerPool(ctx, 4, "extension activation", time.Minute, log)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		_, err := lazy.Get(ctx)
//		return err
//	})
package async
