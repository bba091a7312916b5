package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Laisky/telefiles/internal/registry"
)

// shareLink builds the stable retrieval deep link for a file id.
func shareLink(botName, id string) string {
	return fmt.Sprintf("https://t.me/%s?start=post=%s", botName, id)
}

// recordLabel picks the most descriptive short name for a record.
func recordLabel(record *registry.FileRecord) string {
	if record.Caption != "" {
		return record.Caption
	}

	return string(record.Kind)
}

// renderFilesPage renders one page of records with per-item share and
// delete buttons plus prev/next navigation carrying the page number.
// Out-of-range pages are clamped.
func renderFilesPage(records []*registry.FileRecord, page, pageSize int) (string, [][]Button) {
	if len(records) == 0 {
		return "you have no saved files yet", nil
	}

	pages := (len(records) + pageSize - 1) / pageSize
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(records))

	var b strings.Builder
	fmt.Fprintf(&b, "your files (page %d/%d):\n", page, pages)

	var buttons [][]Button
	for i, record := range records[start:end] {
		n := start + i + 1
		fmt.Fprintf(&b, "%d. [%s] %s - %s\n", n, record.Kind, recordLabel(record), record.Category)
		buttons = append(buttons, []Button{
			{Text: fmt.Sprintf("share %d", n), Data: "file:share:" + record.ID},
			{Text: fmt.Sprintf("delete %d", n), Data: "file:delete:" + record.ID},
		})
	}

	var nav []Button
	if page > 1 {
		nav = append(nav, Button{Text: "« prev", Data: "page:files:" + strconv.Itoa(page-1)})
	}
	if page < pages {
		nav = append(nav, Button{Text: "next »", Data: "page:files:" + strconv.Itoa(page+1)})
	}
	if len(nav) > 0 {
		buttons = append(buttons, nav)
	}

	return b.String(), buttons
}
