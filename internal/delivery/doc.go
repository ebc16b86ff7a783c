// Package delivery sends routed requests to Telegram with bounded retries.
//
// Each request gets MaxRetries attempts, each bounded by a per-kind timeout,
// with exponential backoff between attempts. Image requests degrade to text
// when the image is missing or cannot be sent. Failures end in an error log
// and a bus event; they are never returned to the caller.
package delivery
