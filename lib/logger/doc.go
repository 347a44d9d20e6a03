// Package logger provides named, leveled package loggers backed by zap.
//
// Every package obtains its logger once with GetLogger("name") and keeps it in a
// package level variable. Levels can be changed at runtime for all loggers at once
// (SetLevel), which is how a hot config reload adjusts verbosity.
package logger
