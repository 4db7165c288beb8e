// Package api exposes the letter scheduler over HTTP. Handlers translate
// JSON requests into scheduler calls and map domain errors to status codes;
// they hold no scheduling logic of their own.
package api
