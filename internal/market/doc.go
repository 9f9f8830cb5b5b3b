// Package market implements the built-in generator for the intraday
// electricity market page.
//
// The generator fetches the market report page, follows the first report
// attachment link to a spreadsheet, picks the latest time block that has
// started in the configured timezone and renders a small static HTML page
// with the traded volumes and prices of that block.
package market
