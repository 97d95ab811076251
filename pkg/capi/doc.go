// Package capi provides the types, interfaces, and shared building blocks of a
// Cloud Foundry control-plane client.
//
// # Overview
//
// A concrete client is built by the cfclient package, which wires discovery,
// OAuth, transport, and job polling together. Most consumers import cfclient to
// construct a client and then use the interfaces declared here.
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/capi-facade/pkg/capi"
//	  "github.com/fivetwenty-io/capi-facade/pkg/cfclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := cfclient.New(ctx, &capi.Config{
//	    APIEndpoint: "https://api.example.com",
//	    Username:    "admin",
//	    Password:    "secret",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  err = cli.BindServiceInstanceAndWait(ctx, appGUID, instanceGUID, nil)
//	  if capi.IsConflict(err) { /* already bound */ }
//	}
//
// # Errors
//
// Every failure surfaced by the client is an *OperationError whose Kind is one
// of ErrConfiguration, ErrAuthentication, ErrDiscovery, ErrResourceNotFound,
// ErrConflict, ErrTransport, ErrPlatform, ErrJobFailed or ErrJobTimeout. Use
// errors.Is against the kind, or the helpers IsRetryable, IsFatal, IsNotFound
// and IsConflict.
//
// # Asynchronous operations
//
// Mutations the platform may run in the background return a job GUID. An empty
// GUID means the work already finished. Pass a GUID to JobsClient.AwaitJob, or
// use the ...AndWait helpers on Client.
//
// # Discovery and caching
//
// InfoCache remembers each platform's authorization endpoint for the life of
// the process. It stores documents through the Cache abstraction, so a
// CacheChain of MemoryCache and NATSKVCache can share discovery across
// processes.
package capi
