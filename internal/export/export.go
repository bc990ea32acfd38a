// Package export renders an account's recipes as a downloadable file.
package export

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"recipebox/internal/model"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatTXT  Format = "txt"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown export format")

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatXML, FormatTXT, FormatYAML:
		return f, nil
	default:
		return "", ErrUnknownFormat
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXML:
		return "text/xml"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename is recipes-<unix millis>.<format>.
func (f Format) Filename(now time.Time) string {
	return fmt.Sprintf("recipes-%d.%s", now.UnixMilli(), f)
}

// Record is the flattened shape used by the xml, yaml and txt encoders.
type Record struct {
	ID           uint      `xml:"id" yaml:"id"`
	Title        string    `xml:"title" yaml:"title"`
	Description  string    `xml:"description" yaml:"description"`
	Yield        string    `xml:"yield" yaml:"yield"`
	ActiveTime   string    `xml:"active_time" yaml:"active_time"`
	TotalTime    string    `xml:"total_time" yaml:"total_time"`
	Source       string    `xml:"source" yaml:"source"`
	URL          string    `xml:"url" yaml:"url"`
	Notes        string    `xml:"notes" yaml:"notes"`
	Ingredients  string    `xml:"ingredients" yaml:"ingredients"`
	Instructions string    `xml:"instructions" yaml:"instructions"`
	Folder       string    `xml:"folder" yaml:"folder"`
	Image        string    `xml:"image,omitempty" yaml:"image,omitempty"`
	Labels       []string  `xml:"labels>label" yaml:"labels"`
	CreatedAt    time.Time `xml:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `xml:"updated_at" yaml:"updated_at"`
}

type xmlDocument struct {
	XMLName xml.Name `xml:"recipes"`
	Recipes []Record `xml:"recipe"`
}

func NewRecord(r model.Recipe) Record {
	labels := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		labels = append(labels, l.Title)
	}
	rec := Record{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Yield:        r.Yield,
		ActiveTime:   r.ActiveTime,
		TotalTime:    r.TotalTime,
		Source:       r.Source,
		URL:          r.URL,
		Notes:        r.Notes,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions,
		Folder:       r.Folder,
		Labels:       labels,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Image != nil {
		rec.Image = r.Image.Location
	}
	return rec
}

func Encode(f Format, recipes []model.Recipe) ([]byte, error) {
	if recipes == nil {
		recipes = []model.Recipe{}
	}
	switch f {
	case FormatJSON:
		return json.Marshal(recipes)
	case FormatXML:
		return encodeXML(records(recipes))
	case FormatYAML:
		return yaml.Marshal(records(recipes))
	case FormatTXT:
		return encodeText(records(recipes)), nil
	default:
		return nil, ErrUnknownFormat
	}
}

func records(recipes []model.Recipe) []Record {
	out := make([]Record, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, NewRecord(r))
	}
	return out
}

func encodeXML(recs []Record) ([]byte, error) {
	body, err := xml.MarshalIndent(xmlDocument{Recipes: recs}, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal xml export failed: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// encodeText writes one "key: value" line per field, CRLF terminated, with a
// blank line after each recipe.
func encodeText(recs []Record) []byte {
	var buf bytes.Buffer
	for _, r := range recs {
		line := func(key, value string) {
			buf.WriteString(key)
			buf.WriteString(": ")
			buf.WriteString(value)
			buf.WriteString("\r\n")
		}
		line("id", strconv.FormatUint(uint64(r.ID), 10))
		line("title", r.Title)
		line("description", r.Description)
		line("yield", r.Yield)
		line("active_time", r.ActiveTime)
		line("total_time", r.TotalTime)
		line("source", r.Source)
		line("url", r.URL)
		line("notes", r.Notes)
		line("ingredients", r.Ingredients)
		line("instructions", r.Instructions)
		line("folder", r.Folder)
		line("image", r.Image)
		line("labels", strings.Join(r.Labels, ","))
		line("created_at", r.CreatedAt.Format(time.RFC3339))
		line("updated_at", r.UpdatedAt.Format(time.RFC3339))
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}
