// Package logx wraps zerolog behind a small Field/Logger API so components
// can log through a service whose sinks (console, file, ops chat) are
// swappable at runtime via config reload.
package logx
