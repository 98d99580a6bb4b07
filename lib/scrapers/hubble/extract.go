package hubble

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"hubble-scraper/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// extraction is best-effort throughout: the remote markup drifts between
// page templates, so every rule returns an absent value instead of an
// error when its shape assumption does not hold.

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Download struct {
	Url        string      `json:"url"`
	Type       string      `json:"type"`
	Size       *string     `json:"size,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`
}

// Details holds the label/value metadata pulled out of the page's list
// items. every field is optional, absence is a valid extraction outcome.
type Details struct {
	ObjectName        *string `json:"objectName,omitempty"`
	ObjectDescription *string `json:"objectDescription,omitempty"`
	ReleaseDate       *string `json:"releaseDate,omitempty"`
	RaPosition        *string `json:"raPosition,omitempty"`
	DecPosition       *string `json:"decPosition,omitempty"`
	Constellation     *string `json:"constellation,omitempty"`
	Distance          *string `json:"distance,omitempty"`
	Instrument        *string `json:"instrument,omitempty"`
	ExposureDates     *string `json:"exposureDates,omitempty"`
	Filters           *string `json:"filters,omitempty"`
	Credit            *string `json:"credit,omitempty"`
}

// the label vocabulary and the DOM shape assumptions live in this file so
// a remote markup change only ever touches this one component.
var labelVocabulary = []struct {
	term   string
	assign func(*Details, *string)
}{
	{"object name", func(d *Details, v *string) { d.ObjectName = v }},
	{"object description", func(d *Details, v *string) { d.ObjectDescription = v }},
	{"release date", func(d *Details, v *string) { d.ReleaseDate = v }},
	{"r.a. position", func(d *Details, v *string) { d.RaPosition = v }},
	{"dec. position", func(d *Details, v *string) { d.DecPosition = v }},
	{"constellation", func(d *Details, v *string) { d.Constellation = v }},
	{"distance", func(d *Details, v *string) { d.Distance = v }},
	{"instrument", func(d *Details, v *string) { d.Instrument = v }},
	{"exposure date", func(d *Details, v *string) { d.ExposureDates = v }},
	{"filter", func(d *Details, v *string) { d.Filters = v }},
	{"credit", func(d *Details, v *string) { d.Credit = v }},
}

type PageMetadata struct {
	PageTitle       *string
	PageDescription *string
	Details         Details
	Downloads       []Download
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ExtractMetadata is the stage-1 pass: page title, page description, the
// label/value detail list and the "Downloads" asset list.
func ExtractMetadata(doc *goquery.Document) PageMetadata {
	out := PageMetadata{
		PageTitle:       optional(htmlutil.CleanText(doc.Find("h1").First().Text())),
		PageDescription: extractPageDescription(doc),
		Downloads:       extractDownloads(doc),
	}
	extractDetails(doc, &out.Details)
	return out
}

func extractPageDescription(doc *goquery.Document) *string {
	p := doc.Find("article p").First()
	if p.Length() == 0 {
		p = doc.Find("main p").First()
	}
	return optional(htmlutil.CleanText(p.Text()))
}

// scans every list item for a "short label element followed by value
// elements" shape; the last value element wins, the first vocabulary term
// contained in the label wins, already-assigned fields are kept.
func extractDetails(doc *goquery.Document, out *Details) {
	assigned := map[string]bool{}

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		children := li.Children()
		if children.Length() < 2 {
			return
		}
		label := htmlutil.CleanText(children.First().Text())
		value := htmlutil.CleanText(children.Last().Text())
		if label == "" || value == "" || len(label) > 64 {
			return
		}

		lower := strings.ToLower(label)
		for _, entry := range labelVocabulary {
			if !strings.Contains(lower, entry.term) {
				continue
			}
			if !assigned[entry.term] {
				assigned[entry.term] = true
				entry.assign(out, optional(value))
			}
			return
		}
	})
}

var sizeRegex = regexp.MustCompile(`\(([^)]+)\)`)
var resolutionRegex = regexp.MustCompile(`(?i)(\d+)\s*[x×]\s*(\d+)`)

func extractDownloads(doc *goquery.Document) []Download {
	var list *goquery.Selection

	doc.Find("h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if htmlutil.CleanText(heading.Text()) != "Downloads" {
			return true
		}
		for sib := heading.Next(); sib.Length() > 0; sib = sib.Next() {
			if sib.Is("ul, ol") {
				list = sib
				break
			}
			if inner := sib.Find("ul, ol").First(); inner.Length() > 0 {
				list = inner
				break
			}
		}
		return false
	})
	if list == nil {
		return nil
	}

	var downloads []Download
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		href := li.Find("a[href]").First().AttrOr("href", "")
		if href == "" {
			return
		}
		text := htmlutil.CleanText(li.Text())

		d := Download{Url: href, Type: "jpg"}
		if strings.Contains(strings.ToLower(text), "pdf") {
			d.Type = "pdf"
		}
		if groups := sizeRegex.FindStringSubmatch(text); groups != nil {
			d.Size = optional(strings.TrimSpace(groups[1]))
		}
		if groups := resolutionRegex.FindStringSubmatch(text); groups != nil {
			width, werr := strconv.Atoi(groups[1])
			height, herr := strconv.Atoi(groups[2])
			if werr == nil && herr == nil {
				d.Resolution = &Resolution{Width: width, Height: height}
			}
		}
		downloads = append(downloads, d)
	})
	return downloads
}

// AssetLink finds the fallback link for pages that render their download
// list on a separate asset page.
func AssetLink(doc *goquery.Document) *string {
	var found *string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		link, err := url.Parse(href)
		if err != nil {
			return true
		}
		if strings.Contains(link.Path, "/asset/") {
			found = &href
			return false
		}
		return true
	})
	return found
}

type Narrative struct {
	Title          *string
	Description    *string
	Paragraphs     []string
	Tags           []string
	ScienceRelease *string
	ColorInfo      *string
	MainImage      *string
}

// minimum paragraph length, filters out "N min read" style boilerplate
const minParagraphLength = 50

// ExtractNarrative is the stage-2 pass: long-form paragraphs, category
// tags, the science release blurb, color assignment info and the main
// image url.
func ExtractNarrative(doc *goquery.Document) Narrative {
	out := Narrative{
		Title:          optional(htmlutil.CleanText(doc.Find("h1").First().Text())),
		Paragraphs:     extractParagraphs(doc),
		Tags:           extractTags(doc),
		ScienceRelease: extractScienceRelease(doc),
		ColorInfo:      extractColorInfo(doc),
		MainImage:      extractMainImage(doc),
	}
	if len(out.Paragraphs) > 0 {
		out.Description = optional(strings.Join(out.Paragraphs, "\n\n"))
	}
	return out
}

func extractParagraphs(doc *goquery.Document) []string {
	scope := doc.Find("article p")
	if scope.Length() == 0 {
		scope = doc.Find("main p")
	}

	var paragraphs []string
	scope.Each(func(_ int, p *goquery.Selection) {
		text := htmlutil.CleanText(p.Text())
		if len(text) > minParagraphLength {
			paragraphs = append(paragraphs, text)
		}
	})
	return paragraphs
}

func extractTags(doc *goquery.Document) []string {
	seen := map[string]bool{}
	var tags []string
	for _, anchor := range htmlutil.GetAnchors(doc.Find("a[href]")) {
		link, err := url.Parse(anchor.Href)
		if err != nil {
			continue
		}
		if !strings.Contains(link.Path, "/category/") && !strings.Contains(link.Path, "/universe/") {
			continue
		}
		if anchor.Name == "" || seen[anchor.Name] {
			continue
		}
		seen[anchor.Name] = true
		tags = append(tags, anchor.Name)
	}
	return tags
}

func extractScienceRelease(doc *goquery.Document) *string {
	var release *string
	doc.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		text := htmlutil.CleanText(li.Text())
		if !strings.Contains(text, "Science Release") {
			return true
		}
		text = strings.ReplaceAll(text, "Science Release", "")
		text = strings.ReplaceAll(text, "Read the release", "")
		release = optional(strings.Trim(text, " \t\n:-"))
		return false
	})
	return release
}

var assignedColorsRegex = regexp.MustCompile(`(?i)assigned colors are\s*(.+)`)

func extractColorInfo(doc *goquery.Document) *string {
	var info *string
	doc.Find("p, div, section, li").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		text := htmlutil.CleanText(block.Text())
		if !strings.Contains(text, "Color Info") && !strings.Contains(text, "assigned colors") {
			return true
		}
		groups := assignedColorsRegex.FindStringSubmatch(text)
		if groups == nil {
			return true
		}
		info = optional(strings.TrimSpace(groups[1]))
		return false
	})
	return info
}

func extractMainImage(doc *goquery.Document) *string {
	images := doc.Find("article img")
	if images.Length() == 0 {
		images = doc.Find("img")
	}

	var first *string
	var preferred *string
	images.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := img.AttrOr("src", "")
		if src == "" {
			return true
		}
		if first == nil {
			first = &src
		}
		if strings.Contains(strings.ToLower(src), "hubble") {
			preferred = &src
			return false
		}
		return true
	})

	if preferred != nil {
		return preferred
	}
	return first
}
