package calendar

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"time"

	"github.com/lysyi3m/anitrack/app/anime"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders a projection as an RSS 2.0 document with one item per episode
func (g *Generator) Run(days []Day, meta Meta) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(meta.Title, "Anime release calendar"), 4)
	g.writeElement(&buf, "link", meta.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(meta.Description, "Upcoming episodes from the watching list"), 4)

	if meta.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(meta.SelfLink)))
	}

	g.writeElement(&buf, "lastBuildDate", time.Now().Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("AniTrack/%s", cmp.Or(meta.Version, "dev")), 4)

	for _, day := range days {
		for _, entry := range day.Entries {
			g.writeItem(&buf, day, entry)
		}
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, day Day, entry anime.CalendarEntry) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(fmt.Sprintf("anitrack-%d-%d", entry.ID, entry.Episode)))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", fmt.Sprintf("%s episode %d", entry.Title, entry.Episode), 6)
	g.writeElement(buf, "link", fmt.Sprintf("https://anilist.co/anime/%d", entry.ID), 6)
	g.writeElement(buf, "description", fmt.Sprintf("Airs %s (%s)", day.Weekday, day.Date), 6)
	g.writeElement(buf, "pubDate", time.Unix(entry.AiringAt, 0).UTC().Format(time.RFC1123Z), 6)

	if entry.Favorited {
		g.writeElement(buf, "category", "Favorite", 6)
	}

	if entry.CoverImage != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"image/jpeg\" />\n",
			html.EscapeString(entry.CoverImage)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
