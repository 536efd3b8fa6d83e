// Package provision provides cloud resource provisioning for data transfers.
//
// # Overview
//
// provision turns an abstract resource request (a logical storage bucket
// definition attached to a data transfer) into a concretely provisioned cloud
// resource: a bucket, a scoped identity allowed to access exactly that
// bucket, and a short-lived access token for the identity. It later tears the
// identity down again, leaving the bucket and its data in place.
//
// # Core Concepts
//
// ## Provisioners
//
// A Provisioner handles one storage backend. It receives a ResourceDefinition
// and drives the end-to-end workflow: credential resolution, idempotent
// bucket creation, idempotent identity creation, permission grant and token
// issuance. Provisioners register themselves with a Registry; the first
// provisioner that reports CanProvision wins.
//
// ## Results
//
// Every operation returns a StatusResult: success wrapping a
// ProvisionResponse (resource plus secret token) or a DeprovisionedResource,
// or a failure carrying a fatal/retry classification and a message list.
// Recognized credential and provisioning errors always end up inside the
// result; anything uncategorized escapes as a plain error.
//
// ## Manager
//
// The Manager runs invocations on a bounded worker pool and delivers each
// outcome on a channel, so orchestration code is never blocked on the
// sequence of remote calls a provision performs. Successful resources are
// recorded in a ResourceStore (memory or JSON file) so deprovisioning can be
// driven later by resource id. Secret tokens never enter the store.
//
// # Usage
//
//	definition := &gcp.GcsResourceDefinition{
//	    ID:                "r1",
//	    TransferProcessID: "tp-123",
//	    BucketName:        "b1",
//	    Location:          "us",
//	    ProjectID:         "p1",
//	    DataAddress:       address,
//	}
//
//	manager := provision.NewManager(provision.WithStore(store))
//	outcome := <-manager.Provision(ctx, definition)
//	if outcome.Err != nil {
//	    log.Fatal(outcome.Err)
//	}
//	if outcome.Result.Succeeded() {
//	    fmt.Println(outcome.Result.Content.Resource.GetResourceName())
//	}
package provision
