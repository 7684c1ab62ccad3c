// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pipeline drives each HTTP request through body accumulation,
// routing, authentication and handling, and converts escaped errors into
// responses at a single boundary.
//
// A request moves through the states Receiving, Routing, Authenticating and
// Handling, and ends in Responded or Failed. In silent unmatched mode a
// request that matches no route stays in Routing and nothing is written.
package pipeline
