// Package extension mounts courier inside a host application.
//
// An Extension owns one Courier and drives its lifecycle:
//   - Register builds the Courier and runs store migrations
//   - Start launches the delivery worker loop
//   - Stop drains in-flight attempts and closes the store
//   - Handler serves the admin API under BasePath
//   - RegisterRoutes mounts the same API on a Forge router with OpenAPI metadata
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithStore(postgres.New(db)),
//	    extension.WithBasePath("/webhooks"),
//	)
//	if err := ext.Register(ctx); err != nil {
//	    return err
//	}
//	ext.Start(ctx)
//	defer ext.Stop(context.Background())
//	mux.Handle("/webhooks/", ext.Handler())
package extension
