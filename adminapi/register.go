// Package adminapi is the read-only operational surface SPEC_FULL.md §10 describes: open
// stores, live transaction count/ages, GC suspend state, and deferred queue depth, served over
// gin and documented with swaggo. It cannot open a transaction or mutate a store.
package adminapi

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HTTPVerb enumerates the supported HTTP operations a registered handler answers to. Only GET
// is needed since every route here is read-only.
type HTTPVerb int

const (
	// GET lists or retrieves resources.
	GET HTTPVerb = iota + 1
)

// restMethod describes a single route: verb, path and handler.
type restMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

// register adds a route to s's registry, rejecting a duplicate verb+path pair, the same
// guard the teacher's package-level registry uses.
func (s *Server) register(verb HTTPVerb, path string, h func(c *gin.Context)) {
	key := fmt.Sprintf("%d_%s", verb, path)
	if _, exists := s.routes[key]; exists {
		panic(fmt.Sprintf("adminapi: duplicate route registration for %s", key))
	}
	s.routes[key] = restMethod{Verb: verb, Path: path, Handler: h}
}
