package crawler

import (
	"fmt"

	"hubble-scraper/lib/scrapers/hubble"
)

// canonical asset filenames by classification. pdfs always map to the
// fixed name regardless of any resolution in their text.
func assetFilename(d hubble.Download, index int) string {
	if d.Type == "pdf" {
		return "image.pdf"
	}
	if d.Resolution == nil {
		return fmt.Sprintf("image_%d.jpg", index)
	}
	switch {
	case d.Resolution.Width >= 2000:
		return "full.jpg"
	case d.Resolution.Width >= 800:
		return "thumb_1000.jpg"
	case d.Resolution.Width >= 300:
		return "thumb_400.jpg"
	default:
		return "thumb_200.jpg"
	}
}
