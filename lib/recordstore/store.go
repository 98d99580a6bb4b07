package recordstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hubble-scraper/lib/scrapers/hubble"
)

const metadataFile = "metadata.json"
const enrichedFile = "video-content.json"

var ErrNotFound = errors.New("record not found")

// Metadata is the consolidated stage-1 output for one record, written
// wholesale on every (re)processing, never patched in place.
type Metadata struct {
	Date    string `json:"date"`
	Url     string `json:"url"`
	Name    string `json:"name"`
	Caption string `json:"caption"`
	Year    string `json:"year"`
	Image   string `json:"image"`

	FinalUrl        string  `json:"finalUrl"`
	PageTitle       *string `json:"pageTitle,omitempty"`
	PageDescription *string `json:"pageDescription,omitempty"`
	hubble.Details

	Downloads []hubble.Download `json:"downloads"`
	ScrapedAt string            `json:"scrapedAt"`
}

type QuickFacts struct {
	ObjectName        *string `json:"objectName,omitempty"`
	ObjectDescription *string `json:"objectDescription,omitempty"`
	ReleaseDate       *string `json:"releaseDate,omitempty"`
	Constellation     *string `json:"constellation,omitempty"`
	Distance          *string `json:"distance,omitempty"`
	Instrument        *string `json:"instrument,omitempty"`
}

type Technical struct {
	Filters       *string `json:"filters,omitempty"`
	ExposureDates *string `json:"exposureDates,omitempty"`
	ColorInfo     *string `json:"colorInfo,omitempty"`
}

type Images struct {
	Full      string  `json:"full"`
	Thumbnail string  `json:"thumbnail"`
	Web       *string `json:"web,omitempty"`
}

type Urls struct {
	Original string `json:"original"`
	Final    string `json:"final"`
}

// EnrichedContent is the stage-2 output. its presence on disk is itself
// the "already enriched" marker.
type EnrichedContent struct {
	Title          string     `json:"title"`
	Caption        string     `json:"caption"`
	Description    *string    `json:"description,omitempty"`
	Paragraphs     []string   `json:"paragraphs"`
	Tags           []string   `json:"tags"`
	ScienceRelease *string    `json:"scienceRelease,omitempty"`
	ColorInfo      *string    `json:"colorInfo,omitempty"`
	Credit         *string    `json:"credit,omitempty"`
	QuickFacts     QuickFacts `json:"quickFacts"`
	Technical      Technical  `json:"technical"`
	Images         Images     `json:"images"`
	Urls           Urls       `json:"urls"`
	EnrichedAt     string     `json:"enrichedAt"`
}

// Store keeps one directory per date key under a root output directory.
type Store struct {
	root string
}

func NewStore(root string) Store {
	return Store{root: root}
}

func (s Store) Root() string {
	return s.root
}

func (s Store) Dir(key string) string {
	return filepath.Join(s.root, key)
}

// Done reports whether a record is complete: its metadata document exists
// AND at least one asset landed. metadata alone is a partial state from an
// interrupted run and must be reprocessed.
func (s Store) Done(key string) bool {
	if _, err := os.Stat(filepath.Join(s.Dir(key), metadataFile)); err != nil {
		return false
	}
	return s.hasAssets(key)
}

func (s Store) hasAssets(key string) bool {
	entries, err := os.ReadDir(s.Dir(key))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".pdf" {
			return true
		}
	}
	return false
}

func (s Store) ReadMetadata(key string) (Metadata, error) {
	var out Metadata
	raw, err := os.ReadFile(filepath.Join(s.Dir(key), metadataFile))
	if os.IsNotExist(err) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func (s Store) WriteMetadata(key string, m Metadata) error {
	return s.writeDocument(key, metadataFile, m)
}

func (s Store) WriteEnriched(key string, e EnrichedContent) error {
	return s.writeDocument(key, enrichedFile, e)
}

func (s Store) EnrichedExists(key string) bool {
	_, err := os.Stat(filepath.Join(s.Dir(key), enrichedFile))
	return err == nil
}

// whole-document write through a temp file in the same directory so an
// interrupted run can never leave a truncated json document behind.
func (s Store) writeDocument(key, name string, doc any) error {
	dir := s.Dir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, name+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Keys lists the existing record directories sorted by name, which for
// MM-DD keys is also calendar order.
func (s Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}
