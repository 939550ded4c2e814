// Package prompt assembles the multimodal extraction request: instruction
// text, the literal report schema, and the page images in caller order.
package prompt

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/krittin/tallyscan/internal/gateway"
	"github.com/krittin/tallyscan/internal/report"
	"github.com/krittin/tallyscan/internal/schema"
)

// EmptyInputError means the caller submitted zero pages.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "extraction request contains no page images"
}

const instructionTemplate = `You are reading scanned Thai election ballot tally report forms (แบบรายงานผลการนับคะแนน).

Extract every polling-station report you can find in the attached pages. Pages are attached in document order; one report may span several adjacent pages, and one document may contain reports for more than one polling station. Use page adjacency to decide where one report ends and the next begins.

For each report produce one JSON object matching this schema exactly:

%s

Rules:
- Transcribe numbers as integers. Convert Thai numerals (๐-๙) to Arabic digits.
- If a cell is blank, crossed out, or unreadable, use null. Never substitute 0 for an unreadable cell; 0 means the form literally says zero.
- Keep vote_results rows in the order they appear in the table. vote_count_text is the handwritten spelled-out count when present.
- Do not invent values, and do not total rows yourself; copy what the form says.

Respond with a JSON array of report objects, even when there is only one report. Respond with [] if no report can be found. Output only JSON, no commentary.`

// Build assembles the gateway request for one extraction. Page order is
// preserved; downstream parsing assumes the model may infer station
// boundaries from page adjacency. No side effects.
func Build(req *report.ExtractionRequest, ver *schema.Version) (*gateway.Request, error) {
	if len(req.Pages) == 0 {
		return nil, &EmptyInputError{}
	}

	images := make([]gateway.Image, len(req.Pages))
	for i, page := range req.Pages {
		images[i] = gateway.Image{
			Data:     page.Data,
			MIME:     imageMIME(page),
			Filename: page.Filename,
		}
	}

	return &gateway.Request{
		Instructions: fmt.Sprintf(instructionTemplate, string(ver.Raw)),
		Schema:       ver.Raw,
		Images:       images,
	}, nil
}

// imageMIME picks a content type from the filename extension, sniffing the
// bytes when the extension is unhelpful.
func imageMIME(page report.PageImage) string {
	switch strings.ToLower(filepath.Ext(page.Filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	if len(page.Data) > 0 {
		if detected := http.DetectContentType(page.Data); strings.HasPrefix(detected, "image/") {
			return detected
		}
	}
	return "image/jpeg"
}
