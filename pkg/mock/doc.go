// Package mock provides mock implementations of the backend interfaces for
// testing purposes.
package mock

//go:generate mockgen -destination=mock_backend.go -package=mock github.com/mutablelogic/go-dqueue Backend,Tx
