// Package rate implements the engine's sliding-window attempt limiter on
// Redis sorted sets. Admission is decided server-side in a Lua script so
// two concurrent callers near the boundary can never both slip under the
// limit.
package rate
