// Package batcher coalesces standalone calls into batch calls.
//
// Calls that arrive within a short window are collected into one bucket,
// sent as a single positional batch, and each reply is handed back to its
// caller as an ordinary single call envelope. Callers keep using plain
// Requests; only the number of round trips changes.
//
// Example configuration:
//
//	{
//	  "batching": {
//	    "enabled": true,
//	    "maxSize": 50,
//	    "maxWait": 10
//	  }
//	}
package batcher
