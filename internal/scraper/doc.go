// Package scraper implements the Tick Source.
//
// The scraper:
//   - Reads the current price of every instrument through the Read Service
//   - Publishes one tick per instrument per interval
//   - Uses bounded concurrency so one slow instrument does not stall the cycle
//   - Logs and counts per-instrument failures without aborting the cycle
package scraper
