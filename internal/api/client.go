// Package api is the typed client for the Merry backend REST contract. Reads
// that are safe to repeat go through the response cache; every mutation
// invalidates its resource family after (and only after) it succeeds.
package api

import (
	"merry/internal/cache"
	"merry/internal/transport"

	"github.com/go-playground/validator/v10"
)

type Client struct {
	http     *transport.Client
	cache    *cache.Cache
	validate *validator.Validate
}

func New(http *transport.Client, respCache *cache.Cache) *Client {
	return &Client{
		http:     http,
		cache:    respCache,
		validate: validator.New(),
	}
}
