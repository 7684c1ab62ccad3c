// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package router matches requests to resource handlers.
//
// Each resource is a Group: a collection path matched exactly and an item
// prefix matched by string prefix. Groups are checked in order, collection
// before prefix:
//
//	/books        any method          → List
//	/books/<id>   POST                → Create
//	              PUT                 → Update
//	              PATCH               → Edit
//	              DELETE              → Delete
//	              anything else       → MethodNotSupported
//	other paths                       → NoRoute
//
// Adding a resource is adding a Group value. Every handler is wrapped by
// the gate passed to New, normally the authenticator.
package router
