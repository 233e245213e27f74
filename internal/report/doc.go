// Package report renders node status snapshots.
//
// Three writers are provided:
//   - SimpleWriter: plain text for terminal display
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with a class distribution chart
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
