// Package types contains the shared domain types for the recipe search
// service: recipes and their ingredients, user preference profiles, search
// results with match highlights, and the error taxonomy the transport layer
// maps to status codes.
package types
