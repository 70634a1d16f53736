package gcp

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

func TestDocumentTextJoinsParagraphsPerPage(t *testing.T) {
	full := "Jane Doe\nSenior   Engineer\nGo, Postgres"
	anchor := func(start, end int64) *documentaipb.Document_Page_Layout {
		return &documentaipb.Document_Page_Layout{TextAnchor: &documentaipb.Document_TextAnchor{
			TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
		}}
	}
	doc := &documentaipb.Document{
		Text: full,
		Pages: []*documentaipb.Document_Page{{
			Paragraphs: []*documentaipb.Document_Page_Paragraph{
				{Layout: anchor(0, 8)},
				{Layout: anchor(9, 26)},
				{Layout: anchor(27, 500)},
			},
		}},
	}
	got := documentText(doc)
	if got.Text != full {
		t.Fatalf("text: %q", got.Text)
	}
	if len(got.Pages) != 1 || got.Pages[0] != "Jane Doe\nSenior Engineer\nGo, Postgres" {
		t.Fatalf("pages: %#v", got.Pages)
	}
}

func TestProcessorName(t *testing.T) {
	if got := processorName("p", "us", "abc", ""); got != "projects/p/locations/us/processors/abc" {
		t.Fatalf("name: %q", got)
	}
	if got := processorName("p", "eu", "abc", "v2"); got != "projects/p/locations/eu/processors/abc/processorVersions/v2" {
		t.Fatalf("versioned: %q", got)
	}
	if got := processorName("", "us", "abc", ""); got != "" {
		t.Fatalf("missing project should be empty: %q", got)
	}
}
