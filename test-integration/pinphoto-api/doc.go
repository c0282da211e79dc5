// Package integration provides integration tests for the pinphoto API server.
// These tests run the complete server against a fake image search provider
// and exercise pin management, page fetching and the pin event stream.
package integration
