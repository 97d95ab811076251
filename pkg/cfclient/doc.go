// Package cfclient provides the primary entry point for constructing a
// Cloud Foundry API client that implements the capi.Client interface.
//
// New layers endpoint normalization and token endpoint discovery on top of the
// facade. When the configuration carries credentials that can obtain tokens
// (username/password, client credentials or a refresh token) and TokenURL is
// empty, the authorization endpoint is resolved through the InfoCache from
// "<APIEndpoint>/v2/info" and "<endpoint>/oauth/token" is used.
//
// Quick start
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
//
//	  cli, err := cfclient.New(ctx, &capi.Config{
//	    APIEndpoint: "https://api.example.com",
//	    Username:    "user",
//	    Password:    "pass",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  err = cli.BindServiceInstanceAndWait(ctx, "app-guid", "instance-guid", nil)
//	  if err != nil { log.Fatal(err) }
//	}
//
// # Helpers
//
// The package also provides convenience constructors NewWithEndpoint,
// NewWithToken, NewWithClientCredentials, and NewWithPassword that wrap New
// with the appropriate configuration.
package cfclient
