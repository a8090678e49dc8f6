// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so engine packages can log with typed fields without importing
// zerolog directly, and so a zero-value Logger is always safe to use.
package logx
